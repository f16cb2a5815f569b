// Package history keeps snapshots of finished conversations, newest first.
package history

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"agrimate/internal/models"
)

const (
	titleRunes      = 30
	imageOnlyTitle  = "Image Analysis"
	fallbackTitle   = "Farming Query"
	truncatedSuffix = "..."
)

// Persister stores the whole archive after each change.
type Persister interface {
	LoadHistory(ctx context.Context) []models.ChatSession
	SaveHistory(ctx context.Context, sessions []models.ChatSession) error
}

// Archive is safe for concurrent use.
type Archive struct {
	mu       sync.RWMutex
	sessions []models.ChatSession
	store    Persister
	now      func() time.Time
	lastID   int64

	// persistMu orders writes to store the same as in-memory mutations.
	persistMu sync.Mutex
}

// Open loads the archive from store.
func Open(ctx context.Context, store Persister) *Archive {
	a := &Archive{store: store, now: time.Now}
	if store != nil {
		a.sessions = store.LoadHistory(ctx)
	}
	if a.sessions == nil {
		a.sessions = []models.ChatSession{}
	}
	for _, s := range a.sessions {
		if n, err := strconv.ParseInt(s.ID, 10, 64); err == nil && n > a.lastID {
			a.lastID = n
		}
	}
	return a
}

// Title derives the archive title from the first user message.
func Title(messages []models.Message) string {
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		if m.Content == "" {
			return imageOnlyTitle
		}
		title := m.Content
		if utf8.RuneCountInString(title) >= titleRunes {
			title = string([]rune(title)[:titleRunes]) + truncatedSuffix
		}
		return title
	}
	return fallbackTitle
}

// ArchiveCurrent snapshots messages as a new session. A conversation holding
// only the greeting is not archived and ok is false.
func (a *Archive) ArchiveCurrent(ctx context.Context, messages []models.Message) (models.ChatSession, bool, error) {
	if len(messages) <= 1 {
		return models.ChatSession{}, false, nil
	}
	now := a.now()
	snapshot := make([]models.Message, len(messages))
	for i, m := range messages {
		snapshot[i] = m.Clone()
	}
	session := models.ChatSession{
		ID:        a.nextID(now),
		Title:     Title(messages),
		Messages:  snapshot,
		Timestamp: now,
	}
	return session, true, a.Save(ctx, session)
}

// nextID is the creation millisecond, bumped past the previous archive id so
// that two archives within one millisecond do not replace each other.
func (a *Archive) nextID(now time.Time) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := now.UnixMilli()
	if id <= a.lastID {
		id = a.lastID + 1
	}
	a.lastID = id
	return strconv.FormatInt(id, 10)
}

// Save removes any entry with the same id and prepends session.
func (a *Archive) Save(ctx context.Context, session models.ChatSession) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	a.mu.Lock()
	next := make([]models.ChatSession, 0, len(a.sessions)+1)
	next = append(next, session)
	for _, s := range a.sessions {
		if s.ID != session.ID {
			next = append(next, s)
		}
	}
	a.sessions = next
	snapshot := a.snapshotLocked()
	a.mu.Unlock()
	return a.persist(ctx, snapshot)
}

// Delete drops the session with id and reports whether it existed.
func (a *Archive) Delete(ctx context.Context, id string) (bool, error) {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	a.mu.Lock()
	next := a.sessions[:0:0]
	found := false
	for _, s := range a.sessions {
		if s.ID == id {
			found = true
			continue
		}
		next = append(next, s)
	}
	if !found {
		a.mu.Unlock()
		return false, nil
	}
	a.sessions = next
	snapshot := a.snapshotLocked()
	a.mu.Unlock()
	return true, a.persist(ctx, snapshot)
}

func (a *Archive) Get(id string) (models.ChatSession, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return models.ChatSession{}, false
}

func (a *Archive) List() []models.ChatSession {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Search matches term case-insensitively against titles and message
// contents, keeping archive order. An empty term matches everything.
func (a *Archive) Search(term string) []models.ChatSession {
	if term == "" {
		return a.List()
	}
	needle := strings.ToLower(term)
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.ChatSession, 0)
	for _, s := range a.sessions {
		if matches(s, needle) {
			out = append(out, s)
		}
	}
	return out
}

func matches(s models.ChatSession, needle string) bool {
	if strings.Contains(strings.ToLower(s.Title), needle) {
		return true
	}
	for _, m := range s.Messages {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			return true
		}
	}
	return false
}

func (a *Archive) snapshotLocked() []models.ChatSession {
	out := make([]models.ChatSession, len(a.sessions))
	copy(out, a.sessions)
	return out
}

func (a *Archive) persist(ctx context.Context, sessions []models.ChatSession) error {
	if a.store == nil {
		return nil
	}
	return a.store.SaveHistory(ctx, sessions)
}
