package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"agrimate/internal/models"
)

// HistoryVersion is the schema version written by EncodeHistory.
const HistoryVersion = 1

var ErrUnknownVersion = errors.New("unknown history schema version")

type historyEnvelope struct {
	Version  int                  `json:"version"`
	Sessions []models.ChatSession `json:"sessions"`
}

// EncodeHistory serializes sessions under the current schema version.
func EncodeHistory(sessions []models.ChatSession) ([]byte, error) {
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	data, err := json.Marshal(historyEnvelope{Version: HistoryVersion, Sessions: sessions})
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

// DecodeHistory parses a history record. It accepts the versioned envelope
// and the bare camelCase array written by the browser client. Sessions
// without an id are dropped.
func DecodeHistory(data []byte) ([]models.ChatSession, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.ChatSession{}, nil
	}

	var sessions []models.ChatSession
	if trimmed[0] == '[' {
		var legacy []legacySession
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy history: %w", err)
		}
		sessions = make([]models.ChatSession, 0, len(legacy))
		for _, l := range legacy {
			sessions = append(sessions, l.toModel())
		}
	} else {
		var env historyEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		if env.Version != HistoryVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, env.Version)
		}
		sessions = env.Sessions
	}

	valid := make([]models.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		if s.ID == "" {
			log.Printf("dropping archived session without id (%q)", s.Title)
			continue
		}
		if s.Messages == nil {
			s.Messages = []models.Message{}
		}
		valid = append(valid, s)
	}
	return valid, nil
}

type legacyAttachment struct {
	Type     models.AttachmentType `json:"type"`
	URL      string                `json:"url"`
	MimeType string                `json:"mimeType"`
	Base64   string                `json:"base64"`
}

type legacyMessage struct {
	ID                string             `json:"id"`
	Role              models.Role        `json:"role"`
	Content           string             `json:"content"`
	Timestamp         time.Time          `json:"timestamp"`
	Attachments       []legacyAttachment `json:"attachments"`
	AudioURL          string             `json:"audioUrl"`
	VideoURL          string             `json:"videoUrl"`
	GeneratedImageURL string             `json:"generatedImageUrl"`
	IsVideoLoading    bool               `json:"isVideoLoading"`
	IsImageLoading    bool               `json:"isImageLoading"`
	IsBookmarked      bool               `json:"isBookmarked"`
	Feedback          *models.Feedback   `json:"feedback"`
}

type legacySession struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []legacyMessage `json:"messages"`
	Timestamp time.Time       `json:"timestamp"`
}

func (l legacySession) toModel() models.ChatSession {
	s := models.ChatSession{
		ID:        l.ID,
		Title:     l.Title,
		Timestamp: l.Timestamp,
		Messages:  make([]models.Message, 0, len(l.Messages)),
	}
	for _, m := range l.Messages {
		msg := models.Message{
			ID:                m.ID,
			Role:              m.Role,
			Content:           m.Content,
			Timestamp:         m.Timestamp,
			AudioURL:          m.AudioURL,
			VideoURL:          m.VideoURL,
			GeneratedImageURL: m.GeneratedImageURL,
			IsVideoLoading:    m.IsVideoLoading,
			IsImageLoading:    m.IsImageLoading,
			IsBookmarked:      m.IsBookmarked,
		}
		if m.Feedback != nil && m.Feedback.Valid() {
			msg.Feedback = *m.Feedback
		}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Type:     a.Type,
				URL:      a.URL,
				MimeType: a.MimeType,
				Base64:   a.Base64,
			})
		}
		s.Messages = append(s.Messages, msg)
	}
	return s
}
