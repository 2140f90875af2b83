// Package feed reads water-level samples from a ThingSpeak channel.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/afroash/flood-monitor/internal/models"
)

// ErrEmptyFeed is returned when the channel has no entries to predict from.
var ErrEmptyFeed = errors.New("feed returned no entries")

// StatusError reports a non-200 response from the feed API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed API error: status %d: %s", e.Code, e.Body)
}

// Config holds connection settings for one channel
type Config struct {
	BaseURL            string
	ChannelID          string
	ReadAPIKey         string
	Field              string
	Results            int
	Timeout            time.Duration
	MinRequestInterval time.Duration // 0 disables rate limiting
}

// Client fetches channel feeds over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates a feed client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	limit := rate.Inf
	if cfg.MinRequestInterval > 0 {
		limit = rate.Every(cfg.MinRequestInterval)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "feed").Str("channel_id", cfg.ChannelID).Logger(),
	}
}

// Fetch retrieves the most recent entries of the configured field, oldest first.
func (c *Client) Fetch(ctx context.Context) (*models.Batch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	batch, err := c.toBatch(&fr)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("entries", len(batch.Readings)).
		Dur("elapsed", time.Since(start)).
		Msg("Feed fetched")
	return batch, nil
}

func (c *Client) feedURL() string {
	params := url.Values{
		"results": {strconv.Itoa(c.cfg.Results)},
	}
	if c.cfg.ReadAPIKey != "" {
		params.Set("api_key", c.cfg.ReadAPIKey)
	}
	return fmt.Sprintf("%s/channels/%s/feeds.json?%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(c.cfg.ChannelID),
		params.Encode())
}

func (c *Client) toBatch(fr *feedResponse) (*models.Batch, error) {
	if len(fr.Feeds) == 0 {
		return nil, ErrEmptyFeed
	}

	station := models.StationInfo{
		ID:          c.cfg.ChannelID,
		Name:        fr.Channel.Name,
		Description: fr.Channel.Description,
		LastEntryID: fr.Channel.LastEntryID,
		UpdatedAt:   parseTime(fr.Channel.UpdatedAt),
	}
	if fr.Channel.ID != 0 {
		station.ID = strconv.FormatInt(fr.Channel.ID, 10)
	}
	station.Latitude, _ = strconv.ParseFloat(rawValue(fr.Channel.Latitude), 64)
	station.Longitude, _ = strconv.ParseFloat(rawValue(fr.Channel.Longitude), 64)
	if name, ok := fr.Channel.fieldName(c.cfg.Field); ok {
		station.FieldName = name
	}

	readings := make([]models.Reading, 0, len(fr.Feeds))
	for _, entry := range fr.Feeds {
		raw := rawValue(entry[c.cfg.Field])
		var entryID int64
		if err := json.Unmarshal(entry["entry_id"], &entryID); err != nil {
			c.logger.Debug().Err(err).RawJSON("entry_id", orNull(entry["entry_id"])).Msg("Entry has no usable entry_id")
		}
		var createdAt string
		if err := json.Unmarshal(entry["created_at"], &createdAt); err != nil {
			c.logger.Debug().Err(err).Int64("entry_id", entryID).Msg("Entry has no usable created_at")
		}
		ts := parseTime(createdAt)
		if ts.IsZero() && createdAt != "" {
			c.logger.Debug().Int64("entry_id", entryID).Str("created_at", createdAt).Msg("Unparseable created_at")
		}

		r := models.NewReading(station.ID, entryID, ts, raw)
		readings = append(readings, *r)
	}

	return &models.Batch{
		Station:   station,
		Readings:  readings,
		FetchedAt: time.Now(),
	}, nil
}

// rawValue flattens a JSON field into the raw text the predictor parses.
// ThingSpeak sends strings, but numbers and null show up from other writers.
func rawValue(v json.RawMessage) string {
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// orNull keeps zerolog's RawJSON valid for missing fields
func orNull(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// ThingSpeak API response types.

type feedResponse struct {
	Channel channel                      `json:"channel"`
	Feeds   []map[string]json.RawMessage `json:"feeds"`
}

type channel struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Latitude    json.RawMessage `json:"latitude"`
	Longitude   json.RawMessage `json:"longitude"`
	UpdatedAt   string          `json:"updated_at"`
	LastEntryID int64           `json:"last_entry_id"`
	Field1      string          `json:"field1"`
	Field2      string          `json:"field2"`
	Field3      string          `json:"field3"`
	Field4      string          `json:"field4"`
	Field5      string          `json:"field5"`
	Field6      string          `json:"field6"`
	Field7      string          `json:"field7"`
	Field8      string          `json:"field8"`
}

func (ch channel) fieldName(field string) (string, bool) {
	names := map[string]string{
		"field1": ch.Field1, "field2": ch.Field2, "field3": ch.Field3, "field4": ch.Field4,
		"field5": ch.Field5, "field6": ch.Field6, "field7": ch.Field7, "field8": ch.Field8,
	}
	name, ok := names[field]
	return name, ok && name != ""
}
