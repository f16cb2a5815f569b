package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Feedback is the thumbs rating a user left on a model reply.
type Feedback string

const (
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

// Valid reports whether f is one of the known ratings.
func (f Feedback) Valid() bool {
	return f == FeedbackUp || f == FeedbackDown
}

// Message is one turn of a conversation. Only the flag and generated media
// fields change after the message has been appended.
type Message struct {
	ID                string       `json:"id" yaml:"id"`
	Role              Role         `json:"role" yaml:"role"`
	Content           string       `json:"content" yaml:"content"`
	Timestamp         time.Time    `json:"timestamp" yaml:"timestamp"`
	Attachments       []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	AudioURL          string       `json:"audio_url,omitempty" yaml:"audio_url,omitempty"`
	VideoURL          string       `json:"video_url,omitempty" yaml:"video_url,omitempty"`
	GeneratedImageURL string       `json:"generated_image_url,omitempty" yaml:"generated_image_url,omitempty"`
	IsVideoLoading    bool         `json:"is_video_loading,omitempty" yaml:"is_video_loading,omitempty"`
	IsImageLoading    bool         `json:"is_image_loading,omitempty" yaml:"is_image_loading,omitempty"`
	IsBookmarked      bool         `json:"is_bookmarked,omitempty" yaml:"is_bookmarked,omitempty"`
	Feedback          Feedback     `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// MessagePatch is a partial update merged into a message by id.
// Nil fields are left untouched.
type MessagePatch struct {
	AudioURL          *string
	VideoURL          *string
	GeneratedImageURL *string
	IsVideoLoading    *bool
	IsImageLoading    *bool
	IsBookmarked      *bool
	Feedback          *Feedback
}

// Apply merges the patch into msg.
func (p MessagePatch) Apply(msg *Message) {
	if p.AudioURL != nil {
		msg.AudioURL = *p.AudioURL
	}
	if p.VideoURL != nil {
		msg.VideoURL = *p.VideoURL
	}
	if p.GeneratedImageURL != nil {
		msg.GeneratedImageURL = *p.GeneratedImageURL
	}
	if p.IsVideoLoading != nil {
		msg.IsVideoLoading = *p.IsVideoLoading
	}
	if p.IsImageLoading != nil {
		msg.IsImageLoading = *p.IsImageLoading
	}
	if p.IsBookmarked != nil {
		msg.IsBookmarked = *p.IsBookmarked
	}
	if p.Feedback != nil {
		msg.Feedback = *p.Feedback
	}
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

// Turn is the role and text of a message, as resent to the assistant.
type Turn struct {
	Role Role
	Text string
}
