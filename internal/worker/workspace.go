package worker

import (
	"context"
	"sync"

	"agrimate/internal/history"
	"agrimate/internal/models"
	"agrimate/internal/persist"
	"agrimate/internal/session"
)

// Workspace is the live chat state of one signed-in user.
type Workspace struct {
	Email   string
	Session *session.Store
	History *history.Archive
	State   *persist.State

	mu      sync.Mutex
	pending []models.Attachment
	prefs   models.Preferences
	cache   *stateRedis
}

func newWorkspace(ctx context.Context, email string, state *persist.State, cache *stateRedis) *Workspace {
	ws := &Workspace{
		Email:   email,
		Session: session.NewStore(),
		History: history.Open(ctx, state),
		State:   state,
		prefs:   state.LoadPreferences(ctx),
		cache:   cache,
	}
	if atts, ok := cache.loadPending(email); ok {
		ws.pending = atts
	}
	return ws
}

// AddPending queues attachments for the next send.
func (w *Workspace) AddPending(atts ...models.Attachment) []models.Attachment {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, atts...)
	w.cache.cachePending(w.Email, w.pending)
	return append([]models.Attachment(nil), w.pending...)
}

func (w *Workspace) Pending() []models.Attachment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Attachment(nil), w.pending...)
}

func (w *Workspace) ClearPending() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()
	w.cache.cachePending(w.Email, nil)
}

// TakePending returns the queued attachments and empties the queue.
func (w *Workspace) TakePending() []models.Attachment {
	w.mu.Lock()
	atts := w.pending
	w.pending = nil
	w.mu.Unlock()
	w.cache.cachePending(w.Email, nil)
	return atts
}

func (w *Workspace) Preferences() models.Preferences {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prefs
}

// UpdatePreferences applies fn and persists the result.
func (w *Workspace) UpdatePreferences(ctx context.Context, fn func(*models.Preferences)) (models.Preferences, error) {
	w.mu.Lock()
	next := w.prefs
	fn(&next)
	w.prefs = next
	w.mu.Unlock()
	return next, w.State.SavePreferences(ctx, next)
}

// NewChat archives the current conversation and starts over.
func (w *Workspace) NewChat(ctx context.Context) error {
	_, _, err := w.History.ArchiveCurrent(ctx, w.Session.Messages())
	w.Session.Reset()
	w.ClearPending()
	return err
}

// LoadSession archives the current conversation and replaces it with the
// archived session id. It reports false when id is unknown.
func (w *Workspace) LoadSession(ctx context.Context, id string) (models.ChatSession, bool, error) {
	target, ok := w.History.Get(id)
	if !ok {
		return models.ChatSession{}, false, nil
	}
	_, _, err := w.History.ArchiveCurrent(ctx, w.Session.Messages())
	w.Session.Load(target.Messages)
	w.ClearPending()
	return target, true, err
}

// Close archives the open conversation, as on logout.
func (w *Workspace) Close(ctx context.Context) error {
	_, _, err := w.History.ArchiveCurrent(ctx, w.Session.Messages())
	w.ClearPending()
	return err
}
