// SPDX-License-Identifier: MIT

// Package bus provides non-blocking event distribution to subscribers.
//
// Events published to the bus fan out to all subscriber channels. A
// subscriber that cannot keep up loses its oldest queued event rather
// than blocking the producer: a slow UI consumer must never stall a
// host's poll loop. Events from one producer goroutine arrive at every
// subscriber in publish order.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ManuGH/vmixd/internal/metrics"
	"github.com/ManuGH/vmixd/internal/state"
)

// Type discriminates the event kinds on the wire.
type Type string

const (
	TypeStatusUpdated     Type = "status-updated"
	TypeInputsUpdated     Type = "inputs-updated"
	TypeVideoListsUpdated Type = "videolists-updated"
	TypeConnectionRemoved Type = "connection-removed"
)

// Event is one published state change. Exactly one payload field is set
// per type; Host is always set.
type Event struct {
	Type       Type                   `json:"type"`
	Host       string                 `json:"host"`
	Connection *state.Connection      `json:"connection,omitempty"`
	Inputs     []state.Input          `json:"inputs,omitempty"`
	VideoLists []state.VideoListInput `json:"videoLists,omitempty"`
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Dropped     uint64
	Subscribers int
}

type subscriber struct {
	ch chan Event
}

// Bus fans events out to subscribers without ever blocking a publisher.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	closed    bool
	published atomic.Uint64
	dropped   atomic.Uint64
}

// New returns an open bus with no subscribers.
func New() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its id and receive channel. The channel closes on Unsubscribe
// or Close.
func (b *Bus) Subscribe(buffer int) (string, <-chan Event) {
	if buffer < 1 {
		buffer = 16
	}
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return id, sub.ch
	}
	b.subs[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers the event to every subscriber without blocking. When
// a subscriber's buffer is full its oldest event is dropped so the
// newest state always gets through.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	metrics.IncEventPublished(string(ev.Type))
	for _, sub := range b.subs {
		for {
			select {
			case sub.ch <- ev:
			default:
				select {
				case <-sub.ch:
					b.dropped.Add(1)
					metrics.IncEventDropped()
				default:
				}
				continue
			}
			break
		}
	}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: len(b.subs),
	}
}

// Close closes all subscriber channels and rejects further publishes.
// Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
