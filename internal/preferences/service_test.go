package preferences

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/flood-monitor/internal/models"
)

type memPersister struct {
	mu      sync.Mutex
	saved   map[string]models.Preferences
	loads   int
	saveErr error
	loadErr error
}

func newMemPersister() *memPersister {
	return &memPersister{saved: make(map[string]models.Preferences)}
}

func (m *memPersister) LoadPreferences(profile string) (models.Preferences, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return models.Preferences{}, false, m.loadErr
	}
	p, ok := m.saved[profile]
	return p, ok, nil
}

func (m *memPersister) SavePreferences(p models.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[p.Profile] = p
	return nil
}

func TestService_GetDefaults(t *testing.T) {
	svc := NewService(newMemPersister(), clockwork.NewFakeClock(), zerolog.Nop())

	p, err := svc.Get("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, p.Profile)
	assert.Equal(t, models.ThemeSystem, p.Theme)
	assert.True(t, p.SidebarOpen)
}

func TestService_GetLoadsOnce(t *testing.T) {
	persister := newMemPersister()
	persister.saved["kiosk"] = models.Preferences{Profile: "kiosk", Theme: models.ThemeDark}
	svc := NewService(persister, nil, zerolog.Nop())

	for i := 0; i < 3; i++ {
		p, err := svc.Get("kiosk")
		require.NoError(t, err)
		assert.Equal(t, models.ThemeDark, p.Theme)
		assert.False(t, p.SidebarOpen)
	}
	assert.Equal(t, 1, persister.loads)
}

func TestService_DispatchPersists(t *testing.T) {
	persister := newMemPersister()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(persister, clock, zerolog.Nop())

	p, err := svc.Dispatch("default", Action{Type: ActionToggleTheme})
	require.NoError(t, err)
	assert.Equal(t, models.ThemeLight, p.Theme)
	assert.Equal(t, clock.Now(), p.UpdatedAt)
	assert.Equal(t, p, persister.saved["default"])

	clock.Advance(time.Minute)
	p, err = svc.Dispatch("default", Action{Type: ActionToggleSidebar})
	require.NoError(t, err)
	assert.Equal(t, models.ThemeLight, p.Theme)
	assert.False(t, p.SidebarOpen)
	assert.Equal(t, clock.Now(), p.UpdatedAt)

	got, err := svc.Get("default")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestService_SaveFailureKeepsState(t *testing.T) {
	persister := newMemPersister()
	svc := NewService(persister, clockwork.NewFakeClock(), zerolog.Nop())

	before, err := svc.Get("default")
	require.NoError(t, err)

	persister.saveErr = errors.New("database is locked")
	returned, err := svc.Dispatch("default", Action{Type: ActionToggleTheme})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, before, returned)

	after, err := svc.Get("default")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_InvalidActionKeepsState(t *testing.T) {
	persister := newMemPersister()
	svc := NewService(persister, clockwork.NewFakeClock(), zerolog.Nop())

	_, err := svc.Dispatch("default", Action{Type: ActionSetTheme, Theme: "neon"})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Empty(t, persister.saved)

	p, err := svc.Get("default")
	require.NoError(t, err)
	assert.Equal(t, models.ThemeSystem, p.Theme)
}

func TestService_LoadError(t *testing.T) {
	persister := newMemPersister()
	persister.loadErr = errors.New("no such table")
	svc := NewService(persister, clockwork.NewFakeClock(), zerolog.Nop())

	_, err := svc.Get("default")
	assert.Error(t, err)

	_, err = svc.Dispatch("default", Action{Type: ActionToggleSidebar})
	assert.Error(t, err)
}

func TestService_ProfilesAreIndependent(t *testing.T) {
	svc := NewService(newMemPersister(), clockwork.NewFakeClock(), zerolog.Nop())

	_, err := svc.Dispatch("wall", Action{Type: ActionSetTheme, Theme: models.ThemeDark})
	require.NoError(t, err)

	wall, _ := svc.Get("wall")
	desk, _ := svc.Get("desk")
	assert.Equal(t, models.ThemeDark, wall.Theme)
	assert.Equal(t, models.ThemeSystem, desk.Theme)
}
