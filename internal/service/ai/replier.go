package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"agrimate/internal/config"
	"agrimate/internal/models"
)

// ReplyRequest is one user send.
type ReplyRequest struct {
	Turns       []models.Turn
	Text        string
	Attachments []models.Attachment
	Language    models.Language
	OnChunk     func(accumulated string) error
}

// Replier produces the text answer to a send.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// chatModelReplier answers through an eino chat model.
type chatModelReplier struct {
	chatModel model.BaseChatModel
}

// NewChatModelReplier selects the eino model for provider.
func NewChatModelReplier(ctx context.Context, provider string, cfg *config.Config) (Replier, error) {
	provCfg := cfg.Providers[provider]
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		apiKey := provCfg.APIKey
		if apiKey == "" {
			apiKey = cfg.Gemini.APIKey
		}
		modelName := provCfg.Model
		if modelName == "" {
			modelName = cfg.Gemini.ChatModel
		}
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &chatModelReplier{chatModel: chatModel}, nil
}

func (r *chatModelReplier) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	input := convertMessages(req)
	opts := []model.Option{model.WithTemperature(temperature)}

	if req.OnChunk == nil {
		resp, err := r.chatModel.Generate(ctx, input, opts...)
		if err != nil {
			return "", fmt.Errorf("generate reply: %w", err)
		}
		return resp.Content, nil
	}

	streamReader, err := r.chatModel.Stream(ctx, input, opts...)
	if err != nil {
		return "", fmt.Errorf("generate reply stream failed: %w", err)
	}
	defer streamReader.Close()

	var fullContent string
	for {
		chunk, err := streamReader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("receive reply chunk: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		fullContent += chunk.Content
		if err := req.OnChunk(fullContent); err != nil {
			return "", err
		}
	}
	return fullContent, nil
}

func convertMessages(req ReplyRequest) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.Turns)+2)
	messages = append(messages, schema.SystemMessage(SystemInstruction(req.Language)))
	for _, t := range req.Turns {
		role := schema.User
		if t.Role == models.RoleModel {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: t.Text})
	}

	last := &schema.Message{Role: schema.User, Content: userText(req.Text)}
	var parts []schema.ChatMessagePart
	for _, att := range req.Attachments {
		if att.Base64 == "" {
			continue
		}
		parts = append(parts, attachmentPart(att))
	}
	if len(parts) > 0 {
		last.Content = ""
		last.MultiContent = append([]schema.ChatMessagePart{{
			Type: schema.ChatMessagePartTypeText,
			Text: userText(req.Text),
		}}, parts...)
	}
	return append(messages, last)
}

func attachmentPart(att models.Attachment) schema.ChatMessagePart {
	dataURL := "data:" + att.MimeType + ";base64," + att.Base64
	switch att.Type {
	case models.AttachmentImage:
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: dataURL, MIMEType: att.MimeType},
		}
	case models.AttachmentAudio:
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeAudioURL,
			AudioURL: &schema.ChatMessageAudioURL{URL: dataURL, MIMEType: att.MimeType},
		}
	case models.AttachmentVideo:
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeVideoURL,
			VideoURL: &schema.ChatMessageVideoURL{URL: dataURL, MIMEType: att.MimeType},
		}
	default:
		return schema.ChatMessagePart{
			Type:    schema.ChatMessagePartTypeFileURL,
			FileURL: &schema.ChatMessageFileURL{URL: dataURL, MIMEType: att.MimeType},
		}
	}
}
