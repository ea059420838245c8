// SPDX-License-Identifier: MIT

package sched

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/metrics"
)

// ErrStopped is returned for operations against a poller whose task has
// ended.
var ErrStopped = errors.New("sched: poller stopped")

// Defaults applied when Options leave a field zero.
const (
	DefaultInterval         = 5 * time.Second
	DefaultFailureThreshold = 3
	DefaultBackoffInitial   = 1 * time.Second
	DefaultBackoffMax       = 30 * time.Second
)

// Config is the per-host refresh cadence. Changes take effect on the
// next tick; disabling stops scheduled fetches without touching the
// connection.
type Config struct {
	Enabled  bool
	Interval time.Duration
}

// Hooks connect the poller to the owning supervisor. Fetch performs one
// fetch+reconcile cycle; forced marks completions that must emit even
// when content is unchanged (manual refresh, first success after
// degradation). OnFailure observes consecutive failures; degraded turns
// true once the threshold is crossed.
type Hooks struct {
	Fetch     func(ctx context.Context, forced bool) error
	OnFailure func(err error, consecutive int, degraded bool)
}

// Options configure one poller.
type Options struct {
	Host             string
	Clock            Clock
	FailureThreshold int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

type refreshReq struct {
	reply chan error
}

// Poller owns the refresh task for one HTTP host. All fetches run on
// the task goroutine, so at most one fetch is ever in flight: a fetch
// that overruns its tick makes the ticker coalesce, skipping ticks
// rather than queueing them.
type Poller struct {
	host      string
	clock     Clock
	hooks     Hooks
	threshold int
	boInitial time.Duration
	boMax     time.Duration
	log       zerolog.Logger

	cfgCh     chan Config
	refreshCh chan refreshReq
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller builds a poller; Start launches its task.
func NewPoller(opts Options, hooks Hooks) *Poller {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	boInitial := opts.BackoffInitial
	if boInitial <= 0 {
		boInitial = DefaultBackoffInitial
	}
	boMax := opts.BackoffMax
	if boMax <= 0 {
		boMax = DefaultBackoffMax
	}
	return &Poller{
		host:      opts.Host,
		clock:     clock,
		hooks:     hooks,
		threshold: threshold,
		boInitial: boInitial,
		boMax:     boMax,
		log:       xlog.WithHost("sched", opts.Host),
		cfgCh:     make(chan Config, 1),
		refreshCh: make(chan refreshReq),
		done:      make(chan struct{}),
	}
}

// Start launches the poll task with the initial config.
func (p *Poller) Start(ctx context.Context, cfg Config) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx, cfg)
}

// Stop cancels the task and waits for it to exit. Any fetch in flight
// is abandoned through context cancellation, not awaited to completion.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// SetConfig applies a new cadence, latest-wins, without blocking on an
// in-flight fetch.
func (p *Poller) SetConfig(cfg Config) {
	for {
		select {
		case p.cfgCh <- cfg:
			return
		case <-p.done:
			return
		default:
			// Drop a stale pending config so the newest one lands.
			select {
			case <-p.cfgCh:
			default:
			}
		}
	}
}

// Refresh executes one fetch immediately, independent of the timer
// phase, and returns its result. Scheduled ticks are not perturbed.
func (p *Poller) Refresh(ctx context.Context) error {
	req := refreshReq{reply: make(chan error, 1)}
	select {
	case p.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrStopped
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrStopped
	}
}

func (p *Poller) run(ctx context.Context, cfg Config) {
	defer close(p.done)

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.boInitial
	bo.MaxInterval = p.boMax
	bo.RandomizationFactor = 0 // deterministic retry spacing
	bo.Reset()

	consecutive := 0
	degraded := false
	var resumeAt time.Time

	doFetch := func(forced bool) error {
		started := p.clock.Now()
		err := p.hooks.Fetch(ctx, forced || degraded)
		metrics.ObservePoll(p.host, p.clock.Now().Sub(started), err)
		if ctx.Err() != nil {
			// Cancelled mid-fetch; the result is already discarded.
			return ctx.Err()
		}
		if err != nil {
			consecutive++
			if consecutive >= p.threshold {
				degraded = true
			}
			if p.hooks.OnFailure != nil {
				p.hooks.OnFailure(err, consecutive, degraded)
			}
			if degraded {
				delay := bo.NextBackOff()
				resumeAt = p.clock.Now().Add(delay)
				p.log.Warn().
					Err(err).
					Str("event", "poll.degraded").
					Int("consecutive_failures", consecutive).
					Dur("retry_in", delay).
					Msg("poll failing, backing off")
			}
			return err
		}
		if degraded || consecutive > 0 {
			p.log.Info().
				Str("event", "poll.recovered").
				Int("after_failures", consecutive).
				Msg("poll recovered")
		}
		consecutive = 0
		degraded = false
		resumeAt = time.Time{}
		bo.Reset()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case newCfg := <-p.cfgCh:
			if newCfg.Interval > 0 && newCfg.Interval != interval {
				interval = newCfg.Interval
				ticker.Reset(interval)
			}
			cfg = newCfg
		case req := <-p.refreshCh:
			req.reply <- doFetch(true)
		case now := <-ticker.C():
			if !cfg.Enabled {
				continue
			}
			if !resumeAt.IsZero() && now.Before(resumeAt) {
				continue
			}
			_ = doFetch(false)
		}
	}
}
