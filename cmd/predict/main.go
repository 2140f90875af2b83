// Command predict prints a trend as JSON, either from literal values or from
// a single fetch of the configured feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/config"
	"github.com/afroash/flood-monitor/internal/feed"
	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/observability"
	"github.com/afroash/flood-monitor/internal/predictor"
)

type result struct {
	Station *models.StationInfo `json:"station,omitempty"`
	Values  []string            `json:"values"`
	Trend   models.Trend        `json:"trend"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "predict: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	values := fs.String("values", "", "comma separated levels, oldest first (offline)")
	configPath := fs.String("config", "", "config file; fetches the configured feed once")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var res result
	switch {
	case *values != "":
		res.Values = strings.Split(*values, ",")
	case *configPath != "":
		batch, err := fetchOnce(ctx, *configPath)
		if err != nil {
			return err
		}
		res.Station = &batch.Station
		res.Values = batch.RawValues()
	default:
		return errors.New("one of -values or -config is required")
	}

	res.Trend = predictor.Predict(res.Values)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func fetchOnce(ctx context.Context, path string) (*models.Batch, error) {
	cfg, err := config.LoadAppConfig(path)
	if err != nil {
		return nil, err
	}

	// stdout carries the JSON result
	cfg.Logging.FilePath = ""
	logger, closer, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	client := feed.NewClient(feed.Config{
		BaseURL:    cfg.Feed.BaseURL,
		ChannelID:  cfg.Feed.ChannelID,
		ReadAPIKey: cfg.Feed.ReadAPIKey,
		Field:      cfg.Feed.Field,
		Results:    cfg.Feed.Results,
		Timeout:    cfg.Feed.Timeout,
	}, logger)

	ctx, cancel := context.WithTimeout(ctx, cfg.Feed.Timeout)
	defer cancel()
	return client.Fetch(ctx)
}
