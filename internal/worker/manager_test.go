package worker

import (
	"container/list"
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
)

type fakeMedia struct {
	release chan struct{}
	url     string
	err     error
}

func (f *fakeMedia) wait(ctx context.Context) error {
	if f.release == nil {
		return nil
	}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeMedia) GenerateImage(ctx context.Context, _ string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.url, f.err
}

func (f *fakeMedia) GenerateVideo(ctx context.Context, _ string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.url, f.err
}

func newTestManager(t *testing.T, media MediaGenerator) *Manager {
	t.Helper()
	m := NewManager(kvstore.NewMemory(), media, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSubmitImageSetsLoadingThenURL(t *testing.T) {
	media := &fakeMedia{release: make(chan struct{}), url: "data:image/png;base64,AA=="}
	m := newTestManager(t, media)
	ws := m.Workspace(context.Background(), "a@b.c")
	msg := ws.Session.Append(models.Message{Role: models.RoleModel, Content: "Rice fields"})

	if err := m.SubmitImage(ws, msg.ID); err != nil {
		t.Fatalf("SubmitImage: %v", err)
	}
	if got, _ := ws.Session.Get(msg.ID); !got.IsImageLoading {
		t.Fatalf("loading flag not set on submit")
	}
	close(media.release)
	waitFor(t, func() bool {
		got, _ := ws.Session.Get(msg.ID)
		return got.GeneratedImageURL == media.url && !got.IsImageLoading
	})
}

func TestSubmitVideoFailureClearsFlag(t *testing.T) {
	media := &fakeMedia{err: errors.New("quota")}
	m := newTestManager(t, media)
	ws := m.Workspace(context.Background(), "a@b.c")
	msg := ws.Session.Append(models.Message{Role: models.RoleModel, Content: "Harvest"})

	if err := m.SubmitVideo(ws, msg.ID); err != nil {
		t.Fatalf("SubmitVideo: %v", err)
	}
	waitFor(t, func() bool {
		got, _ := ws.Session.Get(msg.ID)
		return !got.IsVideoLoading
	})
	if got, _ := ws.Session.Get(msg.ID); got.VideoURL != "" {
		t.Fatalf("video url set despite failure")
	}
}

func TestSubmitEmptyResultClearsFlag(t *testing.T) {
	m := newTestManager(t, &fakeMedia{})
	ws := m.Workspace(context.Background(), "a@b.c")
	msg := ws.Session.Append(models.Message{Role: models.RoleModel, Content: "x"})
	if err := m.SubmitImage(ws, msg.ID); err != nil {
		t.Fatalf("SubmitImage: %v", err)
	}
	waitFor(t, func() bool {
		got, _ := ws.Session.Get(msg.ID)
		return !got.IsImageLoading
	})
}

func TestSubmitUnknownMessage(t *testing.T) {
	m := newTestManager(t, &fakeMedia{})
	ws := m.Workspace(context.Background(), "a@b.c")
	if err := m.SubmitImage(ws, "missing"); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDispatcherSubmitRejectsWhenFull(t *testing.T) {
	d := &Dispatcher{JobQueue: make(chan Job, 1), done: make(chan struct{})}
	if err := d.Submit(Job{Email: "a"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := d.Submit(Job{Email: "a"}); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
}

func TestDispatcherRoundRobinAcrossUsers(t *testing.T) {
	p := newJobChannelPool(0, 1, time.Hour, nil)
	ch := make(chan Job)
	p.metadata[ch] = &workerMeta{ch: ch}
	p.running = 1
	got := make(chan Job, 8)
	go func() {
		for p.Release(ch) {
			job := <-ch
			if job.Type == Stop {
				return
			}
			got <- job
		}
	}()
	defer p.close()

	d := &Dispatcher{
		pool:      p,
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	for _, j := range []Job{
		{Email: "a", MessageID: "a1"}, {Email: "a", MessageID: "a2"}, {Email: "a", MessageID: "a3"},
		{Email: "b", MessageID: "b1"}, {Email: "c", MessageID: "c1"},
	} {
		d.enqueueJob(j)
	}

	var order []string
	for i := 0; i < 5; i++ {
		if !d.dispatchOne() {
			t.Fatalf("dispatch %d found no job", i)
		}
		order = append(order, (<-got).MessageID)
	}
	want := []string{"a1", "b1", "c1", "a2", "a3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}
	if d.dispatchOne() {
		t.Fatalf("queue should be empty")
	}
}

func TestCancelUserDropsQueuedJobs(t *testing.T) {
	d := &Dispatcher{
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	d.enqueueJob(Job{Email: "a", MessageID: "1"})
	d.enqueueJob(Job{Email: "a", MessageID: "2"})
	d.enqueueJob(Job{Email: "b", MessageID: "3"})
	if dropped := d.CancelUser("a"); len(dropped) != 2 {
		t.Fatalf("expected 2 dropped jobs, got %d", len(dropped))
	}
	if d.ready.Len() != 1 || d.ready.Front().Value.(string) != "b" {
		t.Fatalf("other users must stay queued")
	}
}

func TestPoolRetiresIdleWorkersDownToMin(t *testing.T) {
	p := newJobChannelPool(1, 3, time.Hour, nil)
	defer p.close()
	for i := 0; i < 3; i++ {
		p.spawnWorker()
	}
	waitFor(t, func() bool {
		running, idle := p.stats()
		return running == 3 && idle == 3
	})
	p.mu.Lock()
	for _, meta := range p.idle {
		meta.lastUsed = time.Now().Add(-2 * time.Hour)
	}
	p.mu.Unlock()

	p.shutdownExpired()
	waitFor(t, func() bool {
		running, _ := p.stats()
		return running == 1
	})
}

func TestPoolDoesNotExceedMax(t *testing.T) {
	p := newJobChannelPool(0, 2, time.Hour, nil)
	defer p.close()
	p.spawnWorker()
	p.spawnWorker()
	p.spawnWorker()
	if running, _ := p.stats(); running != 2 {
		t.Fatalf("expected 2 running workers, got %d", running)
	}
}

func TestResetArchivesAndForgetsWorkspace(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeMedia{})
	ws := m.Workspace(ctx, "a@b.c")
	ws.Session.Append(models.Message{Role: models.RoleUser, Content: "When to sow wheat?"})
	ws.AddPending(models.Attachment{Type: models.AttachmentImage, MimeType: "image/png", Base64: "AA=="})

	if err := m.Reset(ctx, "a@b.c"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	next := m.Workspace(ctx, "a@b.c")
	if next == ws {
		t.Fatalf("workspace should be recreated after reset")
	}
	if next.Session.Len() != 1 {
		t.Fatalf("new workspace should start with the greeting")
	}
	list := next.History.List()
	if len(list) != 1 || list[0].Title != "When to sow wheat?" {
		t.Fatalf("conversation not archived: %+v", list)
	}
	if len(next.Pending()) != 0 {
		t.Fatalf("pending attachments should not survive reset")
	}
}

func TestWorkspacesAreIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeMedia{})
	a := m.Workspace(ctx, "a@b.c")
	b := m.Workspace(ctx, "x@y.z")
	a.Session.Append(models.Message{Role: models.RoleUser, Content: "a"})
	if _, err := a.UpdatePreferences(ctx, func(p *models.Preferences) { p.Theme = models.ThemeDark }); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if b.Session.Len() != 1 || b.Preferences().Theme != models.ThemeLight {
		t.Fatalf("state leaked between users")
	}
	if got := m.UserState("a@b.c").LoadTheme(ctx); got != models.ThemeDark {
		t.Fatalf("theme not persisted, got %q", got)
	}
}

func TestWorkspaceNewChatAndLoadSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeMedia{})
	ws := m.Workspace(ctx, "a@b.c")
	ws.Session.Append(models.Message{Role: models.RoleUser, Content: "cotton"})
	ws.AddPending(models.Attachment{Type: models.AttachmentAudio})

	if err := ws.NewChat(ctx); err != nil {
		t.Fatalf("NewChat: %v", err)
	}
	if ws.Session.Len() != 1 || len(ws.Pending()) != 0 {
		t.Fatalf("new chat should reset the conversation and composer")
	}
	archived := ws.History.List()[0]

	ws.Session.Append(models.Message{Role: models.RoleUser, Content: "maize"})
	loaded, ok, err := ws.LoadSession(ctx, archived.ID)
	if err != nil || !ok || loaded.ID != archived.ID {
		t.Fatalf("LoadSession: %v %v", ok, err)
	}
	msgs := ws.Session.Messages()
	if msgs[len(msgs)-1].Content != "cotton" {
		t.Fatalf("archived messages not loaded: %+v", msgs)
	}
	if len(ws.History.List()) != 2 {
		t.Fatalf("current conversation should be archived before loading")
	}
	if _, ok, _ := ws.LoadSession(ctx, "nope"); ok {
		t.Fatalf("unknown session should not load")
	}
}

func TestTakePendingEmptiesQueue(t *testing.T) {
	m := newTestManager(t, &fakeMedia{})
	ws := m.Workspace(context.Background(), "a@b.c")
	ws.AddPending(models.Attachment{Type: models.AttachmentImage}, models.Attachment{Type: models.AttachmentVideo})
	if got := ws.TakePending(); len(got) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(got))
	}
	if len(ws.Pending()) != 0 {
		t.Fatalf("queue not emptied")
	}
}

func TestDispatchAfterPoolCloseClearsFlag(t *testing.T) {
	m := newTestManager(t, &fakeMedia{})
	ws := m.Workspace(context.Background(), "a@b.c")
	msg := ws.Session.Append(models.Message{Role: models.RoleModel, Content: "Paddy"})

	p := newJobChannelPool(0, 1, time.Hour, nil)
	p.close()
	d := &Dispatcher{
		pool:      p,
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	job := Job{Type: Image, Email: ws.Email, MessageID: msg.ID, workspace: ws}
	setLoading(job, true)
	d.enqueueJob(job)

	if d.dispatchOne() {
		t.Fatalf("closed pool must not accept the job")
	}
	if got, _ := ws.Session.Get(msg.ID); got.IsImageLoading {
		t.Fatalf("loading flag left set on dropped job")
	}
}

func TestStopListenerEndsSubscription(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	r := &stateRedis{client: client, origin: "test"}
	r.startListener(func(string) {})

	done := make(chan struct{})
	go func() {
		r.stopListener()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("listener still running after stop")
	}
}
