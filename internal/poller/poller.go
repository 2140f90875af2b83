// Package poller periodically fetches feed batches and turns them into trends.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/observability"
	"github.com/afroash/flood-monitor/internal/predictor"
)

// DefaultInterval is used when Options.Interval is not set.
const DefaultInterval = 15 * time.Second

// Fetcher returns the latest batch of readings.
type Fetcher interface {
	Fetch(ctx context.Context) (*models.Batch, error)
}

// Sink receives every completed poll. Publish is called from the poller
// goroutine only, one update at a time.
type Sink interface {
	Publish(u Update)
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   zerolog.Logger
	Metrics  *observability.Metrics // optional
}

// Poller runs the fetch, predict and publish cycle.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics

	seq uint64
}

// New creates a poller. It does nothing until Start is called.
func New(fetcher Fetcher, sink Sink, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger.With().Str("component", "poller").Logger(),
		metrics:  opts.Metrics,
	}
}

// Handle controls a running poll loop.
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	trigger  chan struct{}
	stopOnce sync.Once
}

// Stop cancels the loop and waits for it to exit. No Publish happens after
// Stop returns. Safe to call more than once.
func (h *Handle) Stop() {
	h.stopOnce.Do(h.cancel)
	<-h.done
}

// Trigger asks for an immediate poll. Requests made while one is already
// pending are merged.
func (h *Handle) Trigger() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start polls immediately and then once per interval until ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel:  cancel,
		done:    make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}

	ticker := p.clock.NewTicker(p.interval)
	go p.run(ctx, ticker, h)
	return h
}

func (p *Poller) run(ctx context.Context, ticker clockwork.Ticker, h *Handle) {
	defer close(h.done)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("Poller started")
	defer p.logger.Info().Msg("Poller stopped")

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.poll(ctx)
		case <-h.trigger:
			p.logger.Debug().Msg("Manual refresh requested")
			p.poll(ctx)
		}
	}
}

// poll runs one cycle. A fetch interrupted by shutdown is dropped.
func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	p.seq++
	u := Update{Seq: p.seq, StartedAt: p.clock.Now()}

	batch, err := p.fetcher.Fetch(ctx)
	if ctx.Err() != nil {
		p.logger.Debug().Uint64("seq", u.Seq).Msg("Poll cancelled, result discarded")
		return
	}

	if err != nil {
		u.Err = err
		u.CompletedAt = p.clock.Now()
		p.logger.Warn().Err(err).Uint64("seq", u.Seq).Msg("Feed fetch failed")
		p.observe(u, "error")
		p.sink.Publish(u)
		return
	}

	u.Batch = batch
	u.Trend = predictor.Predict(batch.RawValues())
	u.CompletedAt = p.clock.Now()

	p.logger.Debug().
		Uint64("seq", u.Seq).
		Int("readings", len(batch.Readings)).
		Float64("current", u.Trend.CurrentLevel).
		Float64("predicted", u.Trend.PredictedLevel).
		Str("time_to_peak", u.Trend.TimeToPeak).
		Msg("Trend computed")
	p.observe(u, "success")
	p.sink.Publish(u)
}

func (p *Poller) observe(u Update, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Polls.WithLabelValues(outcome).Inc()
	p.metrics.PollDuration.Observe(u.Duration().Seconds())
	if u.Batch != nil {
		p.metrics.BatchSize.Observe(float64(len(u.Batch.Readings)))
	}
}
