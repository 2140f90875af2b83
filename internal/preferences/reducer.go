// Package preferences manages dashboard UI state (theme and sidebar) as
// immutable values changed only through actions.
package preferences

import (
	"errors"
	"fmt"

	"github.com/afroash/flood-monitor/internal/models"
)

// ErrInvalidAction is returned for unknown action types or theme values.
var ErrInvalidAction = errors.New("invalid preferences action")

// ActionType names a state transition.
type ActionType string

const (
	ActionToggleTheme   ActionType = "toggle_theme"
	ActionSetTheme      ActionType = "set_theme"
	ActionToggleSidebar ActionType = "toggle_sidebar"
	ActionSetSidebar    ActionType = "set_sidebar"
)

// Action is a request to change preferences. Theme is read by set_theme,
// Open by set_sidebar.
type Action struct {
	Type  ActionType       `json:"type"`
	Theme models.ThemeMode `json:"theme,omitempty"`
	Open  *bool            `json:"open,omitempty"`
}

// Reduce returns the state that results from applying a to state.
// It has no side effects; state is never modified.
func Reduce(state models.Preferences, a Action) (models.Preferences, error) {
	next := state

	switch a.Type {
	case ActionToggleTheme:
		if state.Theme == models.ThemeLight {
			next.Theme = models.ThemeDark
		} else {
			// dark and system both toggle to light
			next.Theme = models.ThemeLight
		}
	case ActionSetTheme:
		if !a.Theme.Valid() {
			return state, fmt.Errorf("%w: unknown theme %q", ErrInvalidAction, a.Theme)
		}
		next.Theme = a.Theme
	case ActionToggleSidebar:
		next.SidebarOpen = !state.SidebarOpen
	case ActionSetSidebar:
		if a.Open == nil {
			return state, fmt.Errorf("%w: set_sidebar needs \"open\"", ErrInvalidAction)
		}
		next.SidebarOpen = *a.Open
	default:
		return state, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}

	return next, nil
}
