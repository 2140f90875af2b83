package preferences

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
)

// DefaultProfile is used when a request names no profile.
const DefaultProfile = "default"

// Persister loads and saves preferences. storage.SQLiteStore implements it.
type Persister interface {
	LoadPreferences(profile string) (models.Preferences, bool, error)
	SavePreferences(p models.Preferences) error
}

// Service holds the current preferences per profile.
type Service struct {
	persister Persister
	clock     clockwork.Clock
	logger    zerolog.Logger

	mu    sync.Mutex
	cache map[string]models.Preferences
}

// NewService creates a preferences service. A nil clock uses the real clock.
func NewService(persister Persister, clock clockwork.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		persister: persister,
		clock:     clock,
		logger:    logger.With().Str("component", "preferences").Logger(),
		cache:     make(map[string]models.Preferences),
	}
}

// Get returns the current preferences for profile, loading them on first use.
func (s *Service) Get(profile string) (models.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(normalizeProfile(profile))
}

// Dispatch applies an action and persists the result. If the action is
// invalid or the save fails, the current state is left unchanged.
func (s *Service) Dispatch(profile string, a Action) (models.Preferences, error) {
	profile = normalizeProfile(profile)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.current(profile)
	if err != nil {
		return models.Preferences{}, err
	}

	next, err := Reduce(state, a)
	if err != nil {
		return state, err
	}
	next.UpdatedAt = s.clock.Now().UTC()

	if err := s.persister.SavePreferences(next); err != nil {
		return state, fmt.Errorf("save preferences: %w", err)
	}
	s.cache[profile] = next

	s.logger.Debug().
		Str("profile", profile).
		Str("action", string(a.Type)).
		Str("theme", string(next.Theme)).
		Bool("sidebar_open", next.SidebarOpen).
		Msg("Preferences updated")
	return next, nil
}

// current must be called with mu held.
func (s *Service) current(profile string) (models.Preferences, error) {
	if p, ok := s.cache[profile]; ok {
		return p, nil
	}

	p, ok, err := s.persister.LoadPreferences(profile)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	if !ok {
		p = models.DefaultPreferences(profile)
	}
	s.cache[profile] = p
	return p, nil
}

func normalizeProfile(profile string) string {
	if profile == "" {
		return DefaultProfile
	}
	return profile
}
