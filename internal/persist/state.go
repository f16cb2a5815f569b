// Package persist keeps the typed, versioned records of one user on top of
// a kvstore.Store: the signed-in profile, the chat history archive and the
// UI preferences.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
)

const (
	KeyUser        = "agri_user"
	KeyHistory     = "agri_chat_history"
	KeyTheme       = "theme"
	KeyPreferences = "preferences"
)

// State reads and writes one namespace of records.
type State struct {
	store kvstore.Store
}

// New wraps store. Callers scope store per user with kvstore.WithPrefix.
func New(store kvstore.Store) *State {
	return &State{store: store}
}

// ForUser scopes the shared store to the records of email.
func ForUser(store kvstore.Store, email string) *State {
	return New(kvstore.WithPrefix(store, "user/"+email))
}

// LoadUser returns the active user record, or nil when nobody is signed in.
func (s *State) LoadUser(ctx context.Context) (*models.User, error) {
	raw, err := s.store.Get(ctx, KeyUser)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.Email == "" {
		log.Printf("discarding malformed user record: %v", err)
		return nil, nil
	}
	return &u, nil
}

func (s *State) SaveUser(ctx context.Context, u models.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return s.store.Set(ctx, KeyUser, string(data))
}

func (s *State) ClearUser(ctx context.Context) error {
	return s.store.Delete(ctx, KeyUser)
}

// LoadHistory never fails: unreadable or malformed records yield an empty
// history and a log line.
func (s *State) LoadHistory(ctx context.Context) []models.ChatSession {
	raw, err := s.store.Get(ctx, KeyHistory)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Printf("load history failed: %v", err)
		}
		return []models.ChatSession{}
	}
	sessions, err := DecodeHistory([]byte(raw))
	if err != nil {
		log.Printf("Failed to parse history: %v", err)
		return []models.ChatSession{}
	}
	return sessions
}

// SaveHistory writes the whole archive.
func (s *State) SaveHistory(ctx context.Context, sessions []models.ChatSession) error {
	data, err := EncodeHistory(sessions)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, KeyHistory, string(data))
}

// LoadTheme falls back to light for missing or unknown values.
func (s *State) LoadTheme(ctx context.Context) models.Theme {
	raw, err := s.store.Get(ctx, KeyTheme)
	if err != nil {
		return models.ThemeLight
	}
	switch models.Theme(raw) {
	case models.ThemeDark:
		return models.ThemeDark
	default:
		return models.ThemeLight
	}
}

func (s *State) SaveTheme(ctx context.Context, theme models.Theme) error {
	if theme != models.ThemeDark {
		theme = models.ThemeLight
	}
	return s.store.Set(ctx, KeyTheme, string(theme))
}

type prefsRecord struct {
	Language    models.Language `json:"language"`
	SidebarOpen *bool           `json:"sidebar_open"`
}

// LoadPreferences combines the theme record with language and sidebar state.
func (s *State) LoadPreferences(ctx context.Context) models.Preferences {
	prefs := models.DefaultPreferences()
	prefs.Theme = s.LoadTheme(ctx)

	raw, err := s.store.Get(ctx, KeyPreferences)
	if err != nil {
		return prefs
	}
	var rec prefsRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Printf("discarding malformed preferences: %v", err)
		return prefs
	}
	if rec.Language.Valid() {
		prefs.Language = rec.Language
	}
	if rec.SidebarOpen != nil {
		prefs.SidebarOpen = *rec.SidebarOpen
	}
	return prefs
}

func (s *State) SavePreferences(ctx context.Context, prefs models.Preferences) error {
	if err := s.SaveTheme(ctx, prefs.Theme); err != nil {
		return err
	}
	open := prefs.SidebarOpen
	data, err := json.Marshal(prefsRecord{Language: prefs.Language, SidebarOpen: &open})
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	return s.store.Set(ctx, KeyPreferences, string(data))
}
