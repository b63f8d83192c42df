package settings

import (
	"errors"
	"strings"
)

// Settings is the per-user preference document at settings/{uid}.
type Settings struct {
	DarkMode      bool     `json:"darkMode" firestore:"darkMode"`
	FontScale     float64  `json:"fontScale" firestore:"fontScale"`
	Country       string   `json:"country" firestore:"country"`
	Categories    []string `json:"categories" firestore:"categories"`
	Notifications bool     `json:"notifications" firestore:"notifications"`
}

// Categories accepted by the headlines endpoint.
var Categories = []string{"business", "entertainment", "general", "health", "science", "sports", "technology"}

// Default returns the settings used before a user saves any.
func Default(country string) Settings {
	return Settings{
		FontScale:     1.0,
		Country:       country,
		Categories:    []string{"general"},
		Notifications: true,
	}
}

// Path returns the settings document of uid.
func Path(uid string) string {
	return "settings/" + uid
}

// Normalize lower-cases country and categories and drops duplicates.
func (s *Settings) Normalize() {
	s.Country = strings.ToLower(strings.TrimSpace(s.Country))
	seen := make(map[string]bool, len(s.Categories))
	out := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	s.Categories = out
}

// Validate checks ranges and the category list.
func (s Settings) Validate() error {
	if s.FontScale < 0.5 || s.FontScale > 3.0 {
		return errors.New("fontScale must be between 0.5 and 3.0")
	}
	if len(s.Country) != 2 {
		return errors.New("country must be a two-letter code")
	}
	for _, c := range s.Categories {
		if !IsCategory(c) {
			return errors.New("unknown category " + c)
		}
	}
	return nil
}

// IsCategory reports whether c is a known headline category.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}
