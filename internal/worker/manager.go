// Package worker owns the per-user chat workspaces and runs media generation
// in the background on a fair dispatcher.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
	"agrimate/internal/persist"
	"agrimate/internal/service/ai"
)

// ErrUnknownMessage reports a media request for a message that is not in
// the active conversation.
var ErrUnknownMessage = errors.New("message not found")

// MediaGenerator renders pictures and clips for a message.
type MediaGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	// JobTimeout bounds one media job. Video polling is bounded on its own.
	JobTimeout time.Duration
}

type Manager struct {
	store      kvstore.Store
	media      MediaGenerator
	dispatcher *Dispatcher
	cache      *stateRedis
	jobTimeout time.Duration

	mu         sync.Mutex
	workspaces map[string]*Workspace
	closeOnce  sync.Once
}

// NewManager keeps user records in store under "user/<email>".
func NewManager(store kvstore.Store, media MediaGenerator, cfg DispatcherConfig) *Manager {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Minute
	}
	m := &Manager{
		store:      store,
		media:      media,
		cache:      newStateCache(store),
		jobTimeout: cfg.JobTimeout,
		workspaces: make(map[string]*Workspace),
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.IdleTimeout)
	m.cache.startListener(m.forget)
	return m
}

// UserState returns the persisted records of email.
func (m *Manager) UserState(email string) *persist.State {
	return persist.ForUser(m.store, email)
}

// Workspace returns the live workspace of email, loading it on first use.
func (m *Manager) Workspace(ctx context.Context, email string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[email]; ok {
		return ws
	}
	ws := newWorkspace(ctx, email, m.UserState(email), m.cache)
	m.workspaces[email] = ws
	debugLog("[manager] workspace loaded for %s", email)
	return ws
}

// Reset archives the open conversation of email, drops its queued jobs and
// forgets the workspace.
func (m *Manager) Reset(ctx context.Context, email string) error {
	for _, job := range m.dispatcher.CancelUser(email) {
		clearLoading(job)
	}
	m.mu.Lock()
	ws, ok := m.workspaces[email]
	delete(m.workspaces, email)
	m.mu.Unlock()

	m.cache.publishInvalidation(email)
	if !ok {
		return nil
	}
	return ws.Close(ctx)
}

func (m *Manager) forget(email string) {
	m.mu.Lock()
	delete(m.workspaces, email)
	m.mu.Unlock()
	debugLog("[manager] workspace of %s invalidated by peer", email)
}

// SubmitImage marks the message as loading and queues a picture job.
func (m *Manager) SubmitImage(ws *Workspace, msgID string) error {
	return m.submit(ws, Image, msgID)
}

// SubmitVideo marks the message as loading and queues a clip job.
func (m *Manager) SubmitVideo(ws *Workspace, msgID string) error {
	return m.submit(ws, Video, msgID)
}

func (m *Manager) submit(ws *Workspace, typ JobType, msgID string) error {
	msg, ok := ws.Session.Get(msgID)
	if !ok {
		return ErrUnknownMessage
	}
	job := Job{Type: typ, Email: ws.Email, MessageID: msgID, Prompt: msg.Content, workspace: ws}
	setLoading(job, true)
	if err := m.dispatcher.Submit(job); err != nil {
		setLoading(job, false)
		return err
	}
	return nil
}

// Close stops the dispatcher, its workers and the invalidation listener.
func (m *Manager) Close() {
	m.dispatcher.Close()
	m.closeOnce.Do(m.cache.stopListener)
}

func (m *Manager) handleMedia(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), m.jobTimeout)
	defer cancel()

	var (
		url string
		err error
	)
	switch job.Type {
	case Image:
		url, err = m.media.GenerateImage(ctx, job.Prompt)
	case Video:
		url, err = m.media.GenerateVideo(ctx, job.Prompt)
	}
	if err != nil {
		log.Printf("%s generation failed for message %s: %v", job.Type, job.MessageID, err)
		clearLoading(job)
		return
	}
	if url == "" {
		clearLoading(job)
		return
	}

	off := false
	patch := models.MessagePatch{}
	switch job.Type {
	case Image:
		patch.GeneratedImageURL = &url
		patch.IsImageLoading = &off
	case Video:
		patch.VideoURL = &url
		patch.IsVideoLoading = &off
	}
	job.workspace.Session.Update(job.MessageID, patch)
	debugLog("[worker] %s ready for message %s", job.Type, job.MessageID)
}

func setLoading(job Job, on bool) {
	if job.workspace == nil {
		return
	}
	patch := models.MessagePatch{}
	switch job.Type {
	case Image:
		patch.IsImageLoading = &on
	case Video:
		patch.IsVideoLoading = &on
	}
	job.workspace.Session.Update(job.MessageID, patch)
}

func clearLoading(job Job) {
	setLoading(job, false)
}

var _ MediaGenerator = (*ai.Service)(nil)
