package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
)

func TestHistoryRoundTripKeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	st := New(kvstore.NewMemory())
	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	in := []models.ChatSession{{
		ID:        "1700000000000",
		Title:     "Rice",
		Timestamp: ts,
		Messages: []models.Message{{
			ID: "1", Role: models.RoleUser, Content: "rice?", Timestamp: ts,
			IsBookmarked: true, Feedback: models.FeedbackUp,
		}},
	}}
	if err := st.SaveHistory(ctx, in); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	out := st.LoadHistory(ctx)
	if len(out) != 1 || out[0].Title != "Rice" {
		t.Fatalf("unexpected history %+v", out)
	}
	if !out[0].Timestamp.Equal(ts) || !out[0].Messages[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamps not reconstructed: %v / %v", out[0].Timestamp, out[0].Messages[0].Timestamp)
	}
	if !out[0].Messages[0].IsBookmarked || out[0].Messages[0].Feedback != models.FeedbackUp {
		t.Fatalf("flags lost: %+v", out[0].Messages[0])
	}
}

func TestLoadHistoryMalformedYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	st := New(store)
	for _, raw := range []string{"{broken", `{"version":7,"sessions":[]}`, `"just a string"`} {
		if err := store.Set(ctx, KeyHistory, raw); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got := st.LoadHistory(ctx); len(got) != 0 {
			t.Fatalf("expected empty history for %q, got %+v", raw, got)
		}
	}
	if got := New(kvstore.NewMemory()).LoadHistory(ctx); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil history when absent")
	}
}

func TestDecodeLegacyArray(t *testing.T) {
	raw := `[{"id":"17","title":"Wheat...","timestamp":"2024-05-01T08:00:00.000Z",
		"messages":[{"id":"18","role":"model","content":"hi","timestamp":"2024-05-01T08:00:00.000Z",
		"isBookmarked":true,"feedback":"down","generatedImageUrl":"data:image/png;base64,AA==",
		"attachments":[{"type":"image","url":"blob:x","mimeType":"image/png","base64":"AA=="}]}]},
		{"title":"no id","messages":[]}]`
	sessions, err := DecodeHistory([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected session without id dropped, got %d", len(sessions))
	}
	msg := sessions[0].Messages[0]
	if !msg.IsBookmarked || msg.Feedback != models.FeedbackDown || msg.GeneratedImageURL == "" {
		t.Fatalf("legacy fields not mapped: %+v", msg)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].MimeType != "image/png" {
		t.Fatalf("legacy attachment not mapped: %+v", msg.Attachments)
	}
	if sessions[0].Timestamp.Year() != 2024 {
		t.Fatalf("timestamp not parsed: %v", sessions[0].Timestamp)
	}
}

func TestDecodeUnknownVersion(t *testing.T) {
	_, err := DecodeHistory([]byte(`{"version":2,"sessions":[]}`))
	if !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestThemeFallbackAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	st := New(store)
	if got := st.LoadTheme(ctx); got != models.ThemeLight {
		t.Fatalf("expected light default, got %q", got)
	}
	if err := st.SaveTheme(ctx, models.ThemeDark); err != nil {
		t.Fatalf("SaveTheme: %v", err)
	}
	if got := New(store).LoadTheme(ctx); got != models.ThemeDark {
		t.Fatalf("expected dark after reload, got %q", got)
	}
	_ = store.Set(ctx, KeyTheme, "sepia")
	if got := st.LoadTheme(ctx); got != models.ThemeLight {
		t.Fatalf("expected light fallback, got %q", got)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := New(kvstore.NewMemory())
	if got := st.LoadPreferences(ctx); got != models.DefaultPreferences() {
		t.Fatalf("unexpected defaults %+v", got)
	}
	want := models.Preferences{Theme: models.ThemeDark, Language: models.LanguageTelugu, SidebarOpen: false}
	if err := st.SavePreferences(ctx, want); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	if got := st.LoadPreferences(ctx); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestUserRecord(t *testing.T) {
	ctx := context.Background()
	st := New(kvstore.NewMemory())
	if u, err := st.LoadUser(ctx); err != nil || u != nil {
		t.Fatalf("expected no user, got %+v %v", u, err)
	}
	if err := st.SaveUser(ctx, models.User{Email: "a@b.c", Name: "a"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	u, err := st.LoadUser(ctx)
	if err != nil || u == nil || u.Name != "a" {
		t.Fatalf("unexpected user %+v %v", u, err)
	}
	if err := st.ClearUser(ctx); err != nil {
		t.Fatalf("ClearUser: %v", err)
	}
	if u, _ := st.LoadUser(ctx); u != nil {
		t.Fatalf("expected user cleared")
	}
}
