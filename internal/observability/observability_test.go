package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/flood-monitor/internal/config"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.log")

	logger, closer, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", FilePath: path})
	require.NoError(t, err)

	logger.Info().Str("station", "2012345").Msg("hello")
	logger.Debug().Msg("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"station":"2012345"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, _, err := NewLogger(config.LoggingConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.Polls))

	m.Polls.WithLabelValues("success").Inc()
	m.Polls.WithLabelValues("success").Inc()
	m.Polls.WithLabelValues("error").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Polls.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls.WithLabelValues("error")))
	assert.Len(t, m.collectors(), 11)
}
