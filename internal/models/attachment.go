package models

import "strings"

// AttachmentType classifies user supplied media.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentDocument AttachmentType = "document"
)

// Attachment is a media item bound to one message. Base64 carries the
// inline payload sent to the assistant.
type Attachment struct {
	Type     AttachmentType `json:"type" yaml:"type"`
	URL      string         `json:"url" yaml:"url"`
	MimeType string         `json:"mime_type" yaml:"mime_type"`
	Base64   string         `json:"base64,omitempty" yaml:"-"`
}

// TypeForMIME maps a MIME type onto an attachment kind.
func TypeForMIME(mime string) AttachmentType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo
	case strings.HasPrefix(mime, "audio/"):
		return AttachmentAudio
	default:
		return AttachmentDocument
	}
}
