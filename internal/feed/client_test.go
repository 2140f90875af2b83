package feed

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const sampleFeed = `{
  "channel": {
    "id": 2012345,
    "name": "Riverside Gauge",
    "description": "Ultrasonic level sensor",
    "latitude": "14.5995",
    "longitude": 120.9842,
    "field1": "Water Level",
    "updated_at": "2024-06-01T10:00:00Z",
    "last_entry_id": 103
  },
  "feeds": [
    {"created_at": "2024-06-01T09:15:00Z", "entry_id": 100, "field1": "1.0"},
    {"created_at": "2024-06-01T09:30:00Z", "entry_id": 101, "field1": null},
    {"created_at": "2024-06-01T09:45:00Z", "entry_id": 102, "field1": 1.5},
    {"created_at": "2024-06-01T10:00:00Z", "entry_id": 103, "field1": "2.0"}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:    srv.URL,
		ChannelID:  "2012345",
		ReadAPIKey: "READKEY",
		Field:      "field1",
		Results:    4,
		Timeout:    2 * time.Second,
	}, zerolog.Nop())
	return client, srv
}

func TestFetch_DecodesFeed(t *testing.T) {
	var gotPath, gotKey, gotResults string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		gotResults = r.URL.Query().Get("results")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleFeed))
	})

	batch, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/channels/2012345/feeds.json", gotPath)
	assert.Equal(t, "READKEY", gotKey)
	assert.Equal(t, "4", gotResults)

	assert.Equal(t, "2012345", batch.Station.ID)
	assert.Equal(t, "Riverside Gauge", batch.Station.Name)
	assert.Equal(t, "Water Level", batch.Station.FieldName)
	assert.Equal(t, int64(103), batch.Station.LastEntryID)
	assert.InDelta(t, 14.5995, batch.Station.Latitude, 1e-9)
	assert.InDelta(t, 120.9842, batch.Station.Longitude, 1e-9)

	require.Len(t, batch.Readings, 4)
	assert.Equal(t, []string{"1.0", "", "1.5", "2.0"}, batch.RawValues())
	assert.Equal(t, int64(100), batch.Readings[0].EntryID)
	assert.True(t, batch.Readings[0].Valid)
	assert.False(t, batch.Readings[1].Valid)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), batch.Readings[3].Timestamp)
	assert.False(t, batch.FetchedAt.IsZero())
}

func TestFetch_OtherField(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"channel":{"id":1},"feeds":[{"entry_id":1,"field1":"9","field3":"0.42"}]}`))
	})
	client.cfg.Field = "field3"

	batch, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0.42"}, batch.RawValues())
}

func TestFetch_LogsUndecodableEntryFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"channel":{"id":1},"feeds":[
			{"entry_id":"abc","created_at":"2024-06-01T09:00:00Z","field1":"1.0"},
			{"entry_id":2,"created_at":12,"field1":"1.1"},
			{"entry_id":3,"created_at":"yesterday","field1":"1.2"}]}`))
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	client := NewClient(Config{
		BaseURL:   srv.URL,
		ChannelID: "1",
		Field:     "field1",
		Results:   3,
		Timeout:   2 * time.Second,
	}, zerolog.New(&logs).Level(zerolog.DebugLevel))

	batch, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Readings, 3)

	assert.Zero(t, batch.Readings[0].EntryID)
	assert.True(t, batch.Readings[1].Timestamp.IsZero())
	assert.True(t, batch.Readings[2].Timestamp.IsZero())

	out := logs.String()
	assert.Contains(t, out, "Entry has no usable entry_id")
	assert.Contains(t, out, `"entry_id":"abc"`)
	assert.Contains(t, out, "Entry has no usable created_at")
	assert.Contains(t, out, "Unparseable created_at")
}

func TestFetch_EmptyFeed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"channel":{"id":2012345},"feeds":[]}`))
	})

	_, err := client.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrEmptyFeed)
}

func TestFetch_StatusError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel not found", http.StatusNotFound)
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Contains(t, statusErr.Body, "channel not found")
}

func TestFetch_BadJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"feeds": [`))
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFetch_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_RateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	})
	client.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	_, err := client.Fetch(context.Background())
	require.NoError(t, err)

	// the second request would have to wait an hour; the deadline wins
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Fetch(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestRawValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"1.25"`, "1.25"},
		{`3.5`, "3.5"},
		{`null`, ""},
		{``, ""},
		{`true`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rawValue([]byte(tt.in)), "rawValue(%s)", tt.in)
	}
}
