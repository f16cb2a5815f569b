package history

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
	"agrimate/internal/persist"
)

func greeting() models.Message {
	return models.Message{ID: "1", Role: models.RoleModel, Content: "Hello!"}
}

func TestTitleRules(t *testing.T) {
	long := strings.Repeat("a", 30)
	cases := []struct {
		name string
		msgs []models.Message
		want string
	}{
		{"short", []models.Message{greeting(), {Role: models.RoleUser, Content: "rice"}}, "rice"},
		{"exactly thirty", []models.Message{{Role: models.RoleUser, Content: long}}, long + "..."},
		{"longer", []models.Message{{Role: models.RoleUser, Content: long + "bbb"}}, long + "..."},
		{"image only", []models.Message{greeting(), {Role: models.RoleUser, Content: ""}}, "Image Analysis"},
		{"no user", []models.Message{greeting(), {Role: models.RoleModel, Content: "x"}}, "Farming Query"},
		{"multibyte", []models.Message{{Role: models.RoleUser, Content: strings.Repeat("ధ", 31)}}, strings.Repeat("ధ", 30) + "..."},
	}
	for _, tc := range cases {
		if got := Title(tc.msgs); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestArchiveCurrentSkipsGreetingOnly(t *testing.T) {
	a := Open(context.Background(), nil)
	if _, ok, err := a.ArchiveCurrent(context.Background(), []models.Message{greeting()}); ok || err != nil {
		t.Fatalf("expected no-op, got ok=%v err=%v", ok, err)
	}
	if len(a.List()) != 0 {
		t.Fatalf("archive should stay empty")
	}
}

func TestArchiveCurrentPrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	st := persist.New(kvstore.NewMemory())
	a := Open(ctx, st)
	clock := time.UnixMilli(1_700_000_000_000)
	a.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	first, ok, err := a.ArchiveCurrent(ctx, []models.Message{greeting(), {Role: models.RoleUser, Content: "wheat"}})
	if err != nil || !ok {
		t.Fatalf("ArchiveCurrent: %v %v", ok, err)
	}
	second, _, _ := a.ArchiveCurrent(ctx, []models.Message{greeting(), {Role: models.RoleUser, Content: "maize"}})

	list := a.List()
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	reloaded := Open(ctx, st)
	if got := reloaded.List(); len(got) != 2 || got[0].Title != "maize" {
		t.Fatalf("archive not persisted: %+v", got)
	}
}

func TestSaveDeduplicatesByID(t *testing.T) {
	ctx := context.Background()
	a := Open(ctx, nil)
	_ = a.Save(ctx, models.ChatSession{ID: "1", Title: "old"})
	_ = a.Save(ctx, models.ChatSession{ID: "2", Title: "other"})
	_ = a.Save(ctx, models.ChatSession{ID: "1", Title: "new"})
	list := a.List()
	if len(list) != 2 || list[0].Title != "new" || list[1].ID != "2" {
		t.Fatalf("unexpected archive %+v", list)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	a := Open(ctx, nil)
	_ = a.Save(ctx, models.ChatSession{ID: "1", Title: "Rice", Messages: []models.Message{{Content: "paddy water"}}})
	_ = a.Save(ctx, models.ChatSession{ID: "2", Title: "Cotton", Messages: []models.Message{{Content: "bollworm"}}})
	_ = a.Save(ctx, models.ChatSession{ID: "3", Title: "Storage", Messages: []models.Message{{Content: "Keep RICE dry"}}})

	got := a.Search("rice")
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
		t.Fatalf("unexpected search result %+v", got)
	}
	if len(a.Search("")) != 3 {
		t.Fatalf("empty term should return everything")
	}
	if len(a.Search("banana")) != 0 {
		t.Fatalf("expected no match")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	st := persist.New(kvstore.NewMemory())
	a := Open(ctx, st)
	_ = a.Save(ctx, models.ChatSession{ID: "1", Title: "a"})
	_ = a.Save(ctx, models.ChatSession{ID: "2", Title: "b"})
	if ok, err := a.Delete(ctx, "1"); !ok || err != nil {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if ok, _ := a.Delete(ctx, "1"); ok {
		t.Fatalf("second delete should report false")
	}
	if _, ok := a.Get("1"); ok {
		t.Fatalf("deleted session still present")
	}
	if got := Open(ctx, st).List(); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("delete not persisted: %+v", got)
	}
}

func TestArchiveCurrentSameMillisecondKeepsBoth(t *testing.T) {
	ctx := context.Background()
	a := Open(ctx, nil)
	fixed := time.UnixMilli(1_700_000_000_000)
	a.now = func() time.Time { return fixed }
	msgs := []models.Message{greeting(), {Role: models.RoleUser, Content: "x"}}
	first, _, _ := a.ArchiveCurrent(ctx, msgs)
	second, _, _ := a.ArchiveCurrent(ctx, msgs)
	if first.ID == second.ID || len(a.List()) != 2 {
		t.Fatalf("archives in one millisecond collided: %s %s", first.ID, second.ID)
	}
}

type gatedPersister struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	saved   []models.ChatSession
}

func (p *gatedPersister) LoadHistory(context.Context) []models.ChatSession { return nil }

func (p *gatedPersister) SaveHistory(_ context.Context, sessions []models.ChatSession) error {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()
	if first {
		close(p.entered)
		<-p.release
	}
	p.mu.Lock()
	p.saved = sessions
	p.mu.Unlock()
	return nil
}

func TestOverlappingSavesPersistLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	p := &gatedPersister{entered: make(chan struct{}), release: make(chan struct{})}
	a := Open(ctx, p)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = a.Save(ctx, models.ChatSession{ID: "1"})
	}()
	<-p.entered
	go func() {
		defer wg.Done()
		_ = a.Save(ctx, models.ChatSession{ID: "2"})
	}()
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	mem := a.List()
	p.mu.Lock()
	saved := p.saved
	p.mu.Unlock()
	if len(mem) != 2 || len(saved) != len(mem) {
		t.Fatalf("memory=%d persisted=%d", len(mem), len(saved))
	}
	for i := range mem {
		if mem[i].ID != saved[i].ID {
			t.Fatalf("persisted order %v diverges from memory %v", saved, mem)
		}
	}
}
