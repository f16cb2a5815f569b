// Package session holds the ordered messages of the active conversation.
package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"agrimate/internal/models"
)

// Greeting opens every fresh conversation.
const Greeting = "Hello! Welcome to AgriMate. I'm here to help you learn about crops and how they grow. I can look at your pictures or answer your questions in simple words. How can I help you today?"

// ErrBusy rejects a send while another one is in flight.
var ErrBusy = errors.New("a reply is already being generated")

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	busy     bool
	lastID   int64
	now      func() time.Time
}

// NewStore returns a store holding only the greeting.
func NewStore() *Store {
	return newStoreWithClock(time.Now)
}

func newStoreWithClock(now func() time.Time) *Store {
	s := &Store{now: now}
	s.Reset()
	return s
}

// NewID returns a millisecond timestamp id, bumped past the last one handed
// out so that two messages created within the same millisecond stay distinct.
func (s *Store) NewID() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() (string, time.Time) {
	ts := s.now()
	id := ts.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10), ts
}

// Append adds msg at the end. A missing id or timestamp is filled in.
func (s *Store) Append(msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		id, ts := s.nextIDLocked()
		msg.ID = id
		if msg.Timestamp.IsZero() {
			msg.Timestamp = ts
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.messages = append(s.messages, msg.Clone())
	return msg.Clone()
}

// Update merges patch into the message with id. It reports false when no
// such message exists.
func (s *Store) Update(id string, patch models.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			patch.Apply(&s.messages[i])
			return true
		}
	}
	return false
}

// ToggleBookmark flips the bookmark flag and returns the new value.
func (s *Store) ToggleBookmark(id string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].IsBookmarked = !s.messages[i].IsBookmarked
			return s.messages[i].IsBookmarked, true
		}
	}
	return false, false
}

func (s *Store) SetFeedback(id string, fb models.Feedback) bool {
	return s.Update(id, models.MessagePatch{Feedback: &fb})
}

// Get returns a copy of the message with id.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return models.Message{}, false
}

// Messages returns a snapshot in append order.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Turns flattens every message to role and text.
func (s *Store) Turns() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]models.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		turns = append(turns, models.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}

// Reset replaces the conversation with a fresh greeting.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ts := s.nextIDLocked()
	s.messages = []models.Message{{
		ID:        id,
		Role:      models.RoleModel,
		Content:   Greeting,
		Timestamp: ts,
	}}
}

// Load replaces the conversation with archived messages.
func (s *Store) Load(messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]models.Message, len(messages))
	for i, m := range messages {
		s.messages[i] = m.Clone()
		if n, err := strconv.ParseInt(m.ID, 10, 64); err == nil && n > s.lastID {
			s.lastID = n
		}
	}
}

// TryBegin marks the store busy. It returns false if a send is in flight.
func (s *Store) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Store) End() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}
