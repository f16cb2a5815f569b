package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/http"
	"time"

	"google.golang.org/genai"

	"agrimate/internal/config"
	"agrimate/internal/models"
)

var (
	ErrNoAPIKey      = errors.New("gemini api key is not configured")
	ErrEmptyResponse = errors.New("model returned no content")
)

// contentModels is the part of genai.Models this package calls.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// videoOperations is the part of genai.Operations this package calls.
type videoOperations interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, cfg *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Gemini talks to the hosted Gemini models for replies and media.
type Gemini struct {
	models     contentModels
	operations videoOperations
	cfg        config.GeminiConfig
	mediaDir   string
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGemini builds a client from cfg. Generated videos are written to mediaDir.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, mediaDir string) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGemini(client.Models, client.Operations, cfg, mediaDir), nil
}

func newGemini(m contentModels, ops videoOperations, cfg config.GeminiConfig, mediaDir string) *Gemini {
	return &Gemini{
		models:     m,
		operations: ops,
		cfg:        cfg,
		mediaDir:   mediaDir,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		sleep:      sleepContext,
	}
}

// Reply sends prior turns plus the new user turn. With onChunk set the reply
// is streamed and onChunk receives the text accumulated so far.
func (g *Gemini) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	contents := buildContents(req.Turns, req.Text, req.Attachments)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(req.Language), genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
	}

	if req.OnChunk == nil {
		resp, err := g.models.GenerateContent(ctx, g.cfg.ChatModel, contents, cfg)
		if err != nil {
			return "", fmt.Errorf("generate reply: %w", err)
		}
		return resp.Text(), nil
	}

	var full string
	for resp, err := range g.models.GenerateContentStream(ctx, g.cfg.ChatModel, contents, cfg) {
		if err != nil {
			return "", fmt.Errorf("stream reply: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		full += chunk
		if err := req.OnChunk(full); err != nil {
			return "", err
		}
	}
	return full, nil
}

// GenerateSpeech returns base64 encoded 24 kHz mono PCM, or "" when the model
// produced no audio.
func (g *Gemini) GenerateSpeech(ctx context.Context, text string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(speechPrefix+text, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		},
	}
	resp, err := g.models.GenerateContent(ctx, g.cfg.SpeechModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate speech: %w", err)
	}
	blob := firstInline(resp)
	if blob == nil {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(blob.Data), nil
}

// GenerateImage returns the first generated picture as a data URL, or ""
// when the model returned only text.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(imagePrompt(prompt), genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: aspectRatio},
	}
	resp, err := g.models.GenerateContent(ctx, g.cfg.ImageModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	blob := firstInline(resp)
	if blob == nil {
		return "", nil
	}
	mime := blob.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(blob.Data), nil
}

func buildContents(turns []models.Turn, text string, atts []models.Attachment) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns)+1)
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == models.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	parts := []*genai.Part{genai.NewPartFromText(userText(text))}
	for _, att := range atts {
		if att.Base64 == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(att.Base64)
		if err != nil {
			log.Printf("skip attachment with invalid payload (%s): %v", att.MimeType, err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, att.MimeType))
	}
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

func firstInline(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			return part.InlineData
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
