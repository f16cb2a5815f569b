package models

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Language is a reply language code.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguageTelugu  Language = "te"
)

// LanguageInfo names a language in English and in its own script.
type LanguageInfo struct {
	Code  Language `json:"code"`
	Name  string   `json:"name"`
	Label string   `json:"label"`
}

// Languages lists the supported reply languages in display order.
var Languages = []LanguageInfo{
	{Code: LanguageEnglish, Name: "English", Label: "English"},
	{Code: LanguageHindi, Name: "Hindi", Label: "हिन्दी"},
	{Code: LanguageTelugu, Name: "Telugu", Label: "తెలుగు"},
}

// Valid reports whether l is supported.
func (l Language) Valid() bool {
	for _, info := range Languages {
		if info.Code == l {
			return true
		}
	}
	return false
}

// Preferences are per-user UI settings.
type Preferences struct {
	Theme       Theme    `json:"theme"`
	Language    Language `json:"language"`
	SidebarOpen bool     `json:"sidebar_open"`
}

// DefaultPreferences mirrors a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, Language: LanguageEnglish, SidebarOpen: true}
}
