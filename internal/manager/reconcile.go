// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ManuGH/vmixd/internal/bus"
	"github.com/ManuGH/vmixd/internal/metrics"
	"github.com/ManuGH/vmixd/internal/state"
	"github.com/ManuGH/vmixd/internal/vmix"
)

// reconcile folds one snapshot into the host's cached state and emits
// change events. Snapshots whose sequence number does not exceed the
// cached one are discarded: a slow fetch can never overwrite a newer
// result. Event payloads are cloned so no two emissions share object
// graphs with each other or with the cache.
func (s *Supervisor) reconcile(c *conn, snap *state.Snapshot, forced bool) {
	c.reconMu.Lock()
	defer c.reconMu.Unlock()

	if c.cache != nil && snap.Seq <= c.cache.Seq {
		metrics.IncStaleSnapshot(c.host)
		s.log.Debug().
			Str("event", "reconcile.stale").
			Str("host", c.host).
			Uint64("seq", snap.Seq).
			Uint64("cached_seq", c.cache.Seq).
			Msg("stale snapshot discarded")
		return
	}
	if s.isPending(c.host) {
		s.log.Debug().Str("event", "reconcile.pending_removal").Str("host", c.host).Msg("completion for removed host discarded")
		return
	}

	prev := c.cache
	statusChanged := prev == nil || !state.StatusEqual(prev, snap)
	inputsChanged := prev == nil || !state.EqualInputs(prev.Inputs, snap.Inputs)
	listsChanged := prev == nil || !state.EqualVideoLists(prev.VideoLists, snap.VideoLists)
	c.cache = snap

	var rec state.Connection
	updated := s.registry.Update(c.host, func(r *state.Connection) {
		if r.Status != state.StatusConnected {
			statusChanged = true
		}
		r.Status = state.StatusConnected
		r.LastError = ""
		r.Version = snap.Version
		r.Edition = snap.Edition
		r.Preset = snap.Preset
		r.ActiveInput = snap.ActiveInput
		r.PreviewInput = snap.PreviewInput
		rec = *r
	})
	if !updated {
		// Host removed concurrently; Update never re-inserts, and
		// nothing is emitted for a record that no longer exists.
		return
	}
	metrics.SetConnectionUp(c.host, true)

	if statusChanged || forced {
		s.publish(bus.Event{Type: bus.TypeStatusUpdated, Host: c.host, Connection: &rec})
	}
	if inputsChanged || forced {
		s.publish(bus.Event{Type: bus.TypeInputsUpdated, Host: c.host, Inputs: state.CloneInputs(snap.Inputs)})
	}
	if listsChanged || forced {
		s.publish(bus.Event{Type: bus.TypeVideoListsUpdated, Host: c.host, VideoLists: state.CloneVideoLists(snap.VideoLists)})
	}
}

// publish drops events for hosts mid-removal so nothing referencing a
// host is delivered after its connection-removed event.
func (s *Supervisor) publish(ev bus.Event) {
	if s.isPending(ev.Host) {
		return
	}
	s.bus.Publish(ev)
}

func (s *Supervisor) setPending(host string) {
	s.pendingMu.Lock()
	s.pending[host] = struct{}{}
	s.pendingMu.Unlock()
}

func (s *Supervisor) clearPending(host string) {
	s.pendingMu.Lock()
	delete(s.pending, host)
	s.pendingMu.Unlock()
}

func (s *Supervisor) isPending(host string) bool {
	s.pendingMu.RLock()
	_, ok := s.pending[host]
	s.pendingMu.RUnlock()
	return ok
}

// runPushLoop consumes pushed snapshots from a TCP session. When the
// session drops, the host degrades to Reconnecting and the loop redials
// with backoff until it succeeds or the connection is removed.
func (s *Supervisor) runPushLoop(ctx context.Context, c *conn) {
	defer close(c.pushDone)

	pusher, _ := c.getClient().(vmix.Pusher)
	snaps := pusher.Snapshots()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				s.markReconnecting(c.host, errors.New("session lost"))
				if !s.redial(ctx, c) {
					return
				}
				pusher, _ = c.getClient().(vmix.Pusher)
				snaps = pusher.Snapshots()
				continue
			}
			snap.Seq = c.nextSeq()
			s.reconcile(c, snap, false)
		}
	}
}

// markReconnecting degrades the host's status and emits the change.
func (s *Supervisor) markReconnecting(host string, cause error) {
	if s.isPending(host) {
		return
	}
	changed := false
	s.registry.Update(host, func(r *state.Connection) {
		r.LastError = cause.Error()
		if r.Status == state.StatusConnected {
			r.Status = state.StatusReconnecting
			changed = true
		}
	})
	if !changed {
		return
	}
	metrics.SetConnectionUp(host, false)
	s.log.Warn().Err(cause).Str("event", "conn.degraded").Str("host", host).Msg("connection degraded")
	if rec, ok := s.registry.Get(host); ok {
		s.publish(bus.Event{Type: bus.TypeStatusUpdated, Host: host, Connection: &rec})
	}
}

// redial re-establishes a dropped TCP session. Returns false only when
// ctx is cancelled. The first snapshot after a successful redial is
// reconciled forced, so subscribers re-sync even if nothing changed
// while the session was down.
func (s *Supervisor) redial(ctx context.Context, c *conn) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.BackoffInitial
	bo.MaxInterval = s.opts.BackoffMax
	bo.Reset()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(bo.NextBackOff()):
		}

		client, err := s.dial(ctx, c.host, c.port, c.kind)
		if err != nil {
			s.log.Debug().Err(err).Str("event", "conn.redial_failed").Str("host", c.host).Msg("redial failed")
			continue
		}
		snap, err := client.FetchStatus(ctx)
		if err != nil {
			_ = client.Close()
			s.log.Debug().Err(err).Str("event", "conn.redial_failed").Str("host", c.host).Msg("handshake after redial failed")
			continue
		}

		old := c.swapClient(client)
		_ = old.Close()

		snap.Seq = c.nextSeq()
		s.reconcile(c, snap, true)
		s.log.Info().Str("event", "conn.redialed").Str("host", c.host).Msg("session re-established")
		return true
	}
}
