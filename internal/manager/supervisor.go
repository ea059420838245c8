// SPDX-License-Identifier: MIT

// Package manager owns the lifecycle of all vMix connections: it
// composes transports, registry, scheduler, reconciler and event bus
// behind one command API.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vmixd/internal/bus"
	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/metrics"
	"github.com/ManuGH/vmixd/internal/sched"
	"github.com/ManuGH/vmixd/internal/state"
	"github.com/ManuGH/vmixd/internal/vmix"
)

var (
	// ErrUnknownHost is returned for commands against a host that has no
	// established connection.
	ErrUnknownHost = errors.New("manager: unknown host")
	// ErrClosed is returned once the supervisor has been shut down.
	ErrClosed = errors.New("manager: supervisor closed")
)

// ConnectError wraps a failed connection attempt. No registry entry
// exists when Connect returns one.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("manager: connect %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ConnectRequest carries the Connect parameters. Port 0 selects the
// transport's default port; an empty transport means HTTP.
type ConnectRequest struct {
	Host      string
	Port      int
	Transport state.TransportKind
	Label     string
}

// Options configure a Supervisor.
type Options struct {
	Clock            sched.Clock
	Dialer           vmix.Dialer
	FetchTimeout     time.Duration
	FailureThreshold int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	DefaultInterval  time.Duration
}

// Supervisor is the single owner of process-wide connection state. It
// is created once, passed by handle, and torn down with Close.
type Supervisor struct {
	opts     Options
	registry *state.Registry
	bus      *bus.Bus
	dial     vmix.Dialer
	log      zerolog.Logger

	mu          sync.Mutex
	conns       map[string]*conn
	autoRefresh map[string]state.AutoRefreshConfig
	closed      bool

	// pending is the PendingRemoval set: hosts mid-disconnect whose
	// stray late completions must be swallowed. Written only here,
	// read by the emission path.
	pendingMu sync.RWMutex
	pending   map[string]struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// conn is the runtime side of one connection: transport, task and the
// reconciler's cached snapshot.
type conn struct {
	host  string
	port  int
	kind  state.TransportKind
	label string

	clientMu sync.RWMutex
	client   vmix.Client

	poller     *sched.Poller // HTTP only
	pushCancel context.CancelFunc
	pushDone   chan struct{}

	seq     atomic.Uint64
	reconMu sync.Mutex
	cache   *state.Snapshot
}

func (c *conn) getClient() vmix.Client {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client
}

func (c *conn) swapClient(client vmix.Client) vmix.Client {
	c.clientMu.Lock()
	old := c.client
	c.client = client
	c.clientMu.Unlock()
	return old
}

// nextSeq assigns the sequence number at fetch start, so overlapping
// fetches resolve by start order, not completion order.
func (c *conn) nextSeq() uint64 {
	return c.seq.Add(1)
}

// New builds a supervisor. Call Close to tear it down.
func New(opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = sched.RealClock()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = vmix.DefaultHTTPTimeout
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = sched.DefaultFailureThreshold
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = sched.DefaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = sched.DefaultBackoffMax
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = sched.DefaultInterval
	}
	dial := opts.Dialer
	if dial == nil {
		timeout := opts.FetchTimeout
		dial = func(ctx context.Context, host string, port int, kind state.TransportKind) (vmix.Client, error) {
			if kind == state.TransportTCP {
				return vmix.DialTCP(ctx, host, port, timeout)
			}
			return vmix.NewHTTP(host, port, timeout), nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:        opts,
		registry:    state.NewRegistry(),
		bus:         bus.New(),
		dial:        dial,
		log:         xlog.WithComponent("manager"),
		conns:       make(map[string]*conn),
		autoRefresh: make(map[string]state.AutoRefreshConfig),
		pending:     make(map[string]struct{}),
		rootCtx:     ctx,
		rootCancel:  cancel,
	}
}

// Events returns the bus carrying status-updated, inputs-updated,
// videolists-updated and connection-removed events.
func (s *Supervisor) Events() *bus.Bus {
	return s.bus
}

// Statuses returns the current connection records, ordered by host.
func (s *Supervisor) Statuses() []state.Connection {
	return s.registry.List()
}

// Counts reports connected and reconnecting hosts, for health reporting.
func (s *Supervisor) Counts() (connected, reconnecting int) {
	return s.registry.CountByStatus(state.StatusConnected),
		s.registry.CountByStatus(state.StatusReconnecting)
}

// Connect establishes a connection. Idempotent: identical parameters
// against an existing connection return the existing record; different
// parameters tear the old connection down first. The registry entry is
// created only after the first successful handshake.
func (s *Supervisor) Connect(ctx context.Context, req ConnectRequest) (state.Connection, error) {
	host := strings.TrimSpace(req.Host)
	if host == "" {
		return state.Connection{}, &ConnectError{Host: host, Err: errors.New("empty host")}
	}
	kind := req.Transport
	if kind == "" {
		kind = state.TransportHTTP
	}
	if !kind.Valid() {
		return state.Connection{}, &ConnectError{Host: host, Err: fmt.Errorf("unsupported transport %q", req.Transport)}
	}
	port := req.Port
	if port <= 0 {
		port = kind.DefaultPort()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return state.Connection{}, ErrClosed
	}
	if existing, ok := s.conns[host]; ok {
		if existing.port == port && existing.kind == kind {
			if req.Label != "" && req.Label != existing.label {
				existing.label = req.Label
				s.registry.Update(host, func(r *state.Connection) { r.Label = req.Label })
			}
			rec, _ := s.registry.Get(host)
			s.mu.Unlock()
			s.log.Debug().Str("event", "connect.reused").Str("host", host).Msg("connection already established")
			return rec, nil
		}
		s.mu.Unlock()
		// Parameters changed: full teardown, then reconnect below.
		if err := s.Disconnect(ctx, host); err != nil && !errors.Is(err, ErrUnknownHost) {
			return state.Connection{}, err
		}
	} else {
		s.mu.Unlock()
	}

	logger := s.log.With().Str("host", host).Str("transport", string(kind)).Logger()
	logger.Info().Str("event", "connect.start").Int("port", port).Msg("connecting")

	// Handshake runs without any supervisor lock held.
	client, err := s.dial(ctx, host, port, kind)
	if err != nil {
		logger.Warn().Err(err).Str("event", "connect.failed").Msg("dial failed")
		return state.Connection{}, &ConnectError{Host: host, Err: err}
	}
	snap, err := client.FetchStatus(ctx)
	if err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Str("event", "connect.failed").Msg("handshake failed")
		return state.Connection{}, &ConnectError{Host: host, Err: err}
	}

	c := &conn{host: host, port: port, kind: kind, label: req.Label, client: client}
	rec := state.Connection{
		Host:      host,
		Port:      port,
		Label:     req.Label,
		Transport: kind,
		Status:    state.StatusConnected,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = client.Close()
		return state.Connection{}, ErrClosed
	}
	if _, raced := s.conns[host]; raced {
		// A concurrent Connect won; keep its connection.
		s.mu.Unlock()
		_ = client.Close()
		won, _ := s.registry.Get(host)
		return won, nil
	}
	s.conns[host] = c
	s.registry.Insert(rec)
	refreshCfg := s.autoRefresh[host]
	s.mu.Unlock()

	metrics.SetConnectionsActive(s.registry.Len())

	// First snapshot seeds the cache and always emits.
	snap.Seq = c.nextSeq()
	s.reconcile(c, snap, true)

	s.startTask(c, refreshCfg)

	logger.Info().
		Str("event", "connect.established").
		Str("remote_version", snap.Version).
		Int("inputs", len(snap.Inputs)).
		Msg("connected")

	rec, _ = s.registry.Get(host)
	return rec, nil
}

// Disconnect removes a connection: the host enters PendingRemoval first
// so any in-flight completion is discarded, then its task is cancelled
// deterministically, the transport torn down best-effort, the registry
// entry removed and connection-removed emitted.
func (s *Supervisor) Disconnect(ctx context.Context, host string) error {
	s.mu.Lock()
	c, ok := s.conns[host]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	s.setPending(host)
	delete(s.conns, host)
	s.mu.Unlock()

	s.teardown(c)

	s.registry.Remove(host)
	metrics.ForgetHost(host)
	metrics.SetConnectionsActive(s.registry.Len())

	s.bus.Publish(bus.Event{Type: bus.TypeConnectionRemoved, Host: host})
	s.clearPending(host)

	s.log.Info().Str("event", "disconnect.done").Str("host", host).Msg("disconnected")
	return nil
}

// teardown stops the host's task and closes the transport. Teardown
// errors are logged, never returned: the removal must proceed.
func (s *Supervisor) teardown(c *conn) {
	if c.poller != nil {
		c.poller.Stop()
	}
	if c.pushCancel != nil {
		c.pushCancel()
		<-c.pushDone
	}
	if err := c.getClient().Close(); err != nil {
		s.log.Warn().Err(err).Str("event", "disconnect.teardown_error").Str("host", c.host).Msg("transport teardown failed")
	}
}

// Refresh fetches immediately, independent of the timer phase. For HTTP
// hosts it runs on the poll task so only one fetch is ever in flight.
func (s *Supervisor) Refresh(ctx context.Context, host string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	c, ok := s.conns[host]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	poller := c.poller
	s.mu.Unlock()

	if poller != nil {
		return poller.Refresh(ctx)
	}
	seq := c.nextSeq()
	snap, err := c.getClient().FetchStatus(ctx)
	if err != nil {
		return err
	}
	snap.Seq = seq
	s.reconcile(c, snap, true)
	return nil
}

// GetInputs fetches the current input list synchronously and folds the
// result into the cache, for consumers that cannot wait for a tick.
func (s *Supervisor) GetInputs(ctx context.Context, host string) ([]state.Input, error) {
	snap, err := s.fetchNow(ctx, host)
	if err != nil {
		return nil, err
	}
	return state.CloneInputs(snap.Inputs), nil
}

// GetVideoLists fetches the current VideoList inputs synchronously and
// folds the result into the cache.
func (s *Supervisor) GetVideoLists(ctx context.Context, host string) ([]state.VideoListInput, error) {
	snap, err := s.fetchNow(ctx, host)
	if err != nil {
		return nil, err
	}
	return state.CloneVideoLists(snap.VideoLists), nil
}

func (s *Supervisor) fetchNow(ctx context.Context, host string) (*state.Snapshot, error) {
	c, err := s.lookup(host)
	if err != nil {
		return nil, err
	}
	seq := c.nextSeq()
	snap, err := c.getClient().FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	snap.Seq = seq
	s.reconcile(c, snap, false)
	return snap, nil
}

// SendFunction executes a named function. Fire-and-forget: the error
// goes to this caller only and is never retried.
func (s *Supervisor) SendFunction(ctx context.Context, host, name string, params map[string]string) error {
	c, err := s.lookup(host)
	if err != nil {
		return err
	}
	return c.getClient().SendFunction(ctx, name, params)
}

// SelectVideoListItem sends the selection command. The cache is not
// touched: the next snapshot is the sole source of truth, so a rejected
// command cannot leave divergent state behind.
func (s *Supervisor) SelectVideoListItem(ctx context.Context, host string, inputNumber, itemIndex int) error {
	c, err := s.lookup(host)
	if err != nil {
		return err
	}
	return c.getClient().SelectVideoListItem(ctx, inputNumber, itemIndex)
}

// SetAutoRefreshConfig stores the cadence for host and applies it to a
// running poller. The config may be set before the connection exists.
func (s *Supervisor) SetAutoRefreshConfig(host string, cfg state.AutoRefreshConfig) {
	s.mu.Lock()
	s.autoRefresh[host] = cfg
	var poller *sched.Poller
	if c := s.conns[host]; c != nil {
		poller = c.poller
	}
	s.mu.Unlock()

	if poller != nil {
		poller.SetConfig(s.pollConfig(cfg))
	}
	s.log.Info().
		Str("event", "autorefresh.updated").
		Str("host", host).
		Bool("enabled", cfg.Enabled).
		Uint("interval_seconds", cfg.IntervalSeconds).
		Msg("auto refresh config updated")
}

// GetAutoRefreshConfig returns the stored cadence for host.
func (s *Supervisor) GetAutoRefreshConfig(host string) (state.AutoRefreshConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.autoRefresh[host]
	return cfg, ok
}

// AllAutoRefreshConfigs returns a copy of every stored cadence.
func (s *Supervisor) AllAutoRefreshConfigs() map[string]state.AutoRefreshConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]state.AutoRefreshConfig, len(s.autoRefresh))
	for h, cfg := range s.autoRefresh {
		out[h] = cfg
	}
	return out
}

// Close disconnects every host and shuts the bus down.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*conn)
	s.mu.Unlock()

	for _, c := range conns {
		s.setPending(c.host)
		s.teardown(c)
		s.registry.Remove(c.host)
		metrics.ForgetHost(c.host)
		s.bus.Publish(bus.Event{Type: bus.TypeConnectionRemoved, Host: c.host})
		s.clearPending(c.host)
	}
	metrics.SetConnectionsActive(0)
	s.rootCancel()
	s.bus.Close()
	s.log.Info().Str("event", "supervisor.closed").Msg("supervisor closed")
}

func (s *Supervisor) lookup(host string) (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	c, ok := s.conns[host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	return c, nil
}

func (s *Supervisor) pollConfig(cfg state.AutoRefreshConfig) sched.Config {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = s.opts.DefaultInterval
	}
	return sched.Config{Enabled: cfg.Enabled, Interval: interval}
}

// startTask launches the per-host task: a poll loop for HTTP, the
// persistent push consumer for TCP. A conn that lost its registration
// to a concurrent Disconnect gets no task.
func (s *Supervisor) startTask(c *conn, cfg state.AutoRefreshConfig) {
	s.mu.Lock()
	if s.conns[c.host] != c {
		s.mu.Unlock()
		return
	}
	defer s.mu.Unlock()
	if c.kind == state.TransportTCP {
		if p, ok := c.getClient().(vmix.Pusher); ok && p.Snapshots() != nil {
			ctx, cancel := context.WithCancel(s.rootCtx)
			c.pushCancel = cancel
			c.pushDone = make(chan struct{})
			go s.runPushLoop(ctx, c)
		}
		return
	}

	c.poller = sched.NewPoller(sched.Options{
		Host:             c.host,
		Clock:            s.opts.Clock,
		FailureThreshold: s.opts.FailureThreshold,
		BackoffInitial:   s.opts.BackoffInitial,
		BackoffMax:       s.opts.BackoffMax,
	}, sched.Hooks{
		Fetch: func(ctx context.Context, forced bool) error {
			return s.fetchAndReconcile(ctx, c, forced)
		},
		OnFailure: func(err error, consecutive int, degraded bool) {
			s.onPollFailure(c, err, degraded)
		},
	})
	c.poller.Start(s.rootCtx, s.pollConfig(cfg))
}

func (s *Supervisor) fetchAndReconcile(ctx context.Context, c *conn, forced bool) error {
	seq := c.nextSeq()
	snap, err := c.getClient().FetchStatus(ctx)
	if err != nil {
		return err
	}
	snap.Seq = seq
	s.reconcile(c, snap, forced)
	return nil
}

// onPollFailure records the error and degrades Connected hosts to
// Reconnecting once the failure threshold is crossed. Poll failures are
// never surfaced beyond the status field.
func (s *Supervisor) onPollFailure(c *conn, err error, degraded bool) {
	if s.isPending(c.host) {
		return
	}
	becameReconnecting := false
	s.registry.Update(c.host, func(r *state.Connection) {
		r.LastError = err.Error()
		if degraded && r.Status == state.StatusConnected {
			r.Status = state.StatusReconnecting
			becameReconnecting = true
		}
	})
	if !becameReconnecting {
		return
	}
	metrics.SetConnectionUp(c.host, false)
	if rec, ok := s.registry.Get(c.host); ok {
		s.publish(bus.Event{Type: bus.TypeStatusUpdated, Host: c.host, Connection: &rec})
	}
}
