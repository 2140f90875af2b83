package models

import "time"

// ThemeMode is the dashboard colour scheme
type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

// Valid reports whether the mode is one the dashboard understands
func (m ThemeMode) Valid() bool {
	switch m {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// Preferences is the persisted dashboard UI state for one profile.
// Values are treated as immutable; changes produce a new value.
type Preferences struct {
	Profile     string    `json:"profile"`
	Theme       ThemeMode `json:"theme"`
	SidebarOpen bool      `json:"sidebar_open"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// DefaultPreferences returns the state used before anything was saved
func DefaultPreferences(profile string) Preferences {
	return Preferences{
		Profile:     profile,
		Theme:       ThemeSystem,
		SidebarOpen: true,
	}
}
