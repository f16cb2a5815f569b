// Package ai forwards conversations and media requests to the hosted models.
package ai

import (
	"context"
	"log"

	"agrimate/internal/config"
)

const (
	// EmptyReply stands in for a successful call that returned no text.
	EmptyReply = "Something went wrong."
	// ConnectionErrorReply stands in for a failed call.
	ConnectionErrorReply = "Connection error. Please try again later."
)

// MediaGenerator synthesizes speech, pictures and clips.
type MediaGenerator interface {
	GenerateSpeech(ctx context.Context, text string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

// Service routes text replies to the configured replier and media to Gemini.
type Service struct {
	replier Replier
	media   MediaGenerator
}

func NewService(replier Replier, media MediaGenerator) *Service {
	return &Service{replier: replier, media: media}
}

// New wires the service from configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	g, err := NewGemini(ctx, cfg.Gemini, cfg.BasicConfig.MediaDir)
	if err != nil {
		return nil, err
	}
	var replier Replier = g
	if p := cfg.Gemini.ReplyProvider; p != "" && p != "gemini" {
		replier, err = NewChatModelReplier(ctx, p, cfg)
		if err != nil {
			return nil, err
		}
		log.Printf("text replies served by %s", p)
	}
	return NewService(replier, g), nil
}

// SendMessage returns the model answer for one send. Errors still return the
// connection apology so callers can append a balanced model turn; blank
// answers become the generic one.
func (s *Service) SendMessage(ctx context.Context, req ReplyRequest) (string, error) {
	text, err := s.replier.Reply(ctx, req)
	if err != nil {
		log.Printf("reply failed: %v", err)
		return ConnectionErrorReply, err
	}
	if text == "" {
		return EmptyReply, nil
	}
	return text, nil
}

func (s *Service) GenerateSpeech(ctx context.Context, text string) (string, error) {
	return s.media.GenerateSpeech(ctx, text)
}

func (s *Service) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return s.media.GenerateImage(ctx, prompt)
}

func (s *Service) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	return s.media.GenerateVideo(ctx, prompt)
}
