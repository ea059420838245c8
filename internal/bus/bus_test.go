// SPDX-License-Identifier: MIT

package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vmixd/internal/state"
)

func recvOne(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestPublishFansOut(t *testing.T) {
	b := New()
	defer b.Close()

	_, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)

	ev := Event{Type: TypeStatusUpdated, Host: "h", Connection: &state.Connection{Host: "h"}}
	b.Publish(ev)

	got1 := recvOne(t, ch1)
	got2 := recvOne(t, ch2)
	assert.Equal(t, ev.Type, got1.Type)
	assert.Equal(t, "h", got1.Host)
	assert.Equal(t, ev.Type, got2.Type)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, 2, stats.Subscribers)
}

func TestSlowSubscriberLosesOldestNotNewest(t *testing.T) {
	b := New()
	defer b.Close()

	_, ch := b.Subscribe(2)

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TypeInputsUpdated, Host: fmt.Sprintf("h%d", i)})
	}

	// Buffer holds the two newest events; older ones were dropped.
	first := recvOne(t, ch)
	second := recvOne(t, ch)
	assert.Equal(t, "h3", first.Host)
	assert.Equal(t, "h4", second.Host)
	assert.Equal(t, uint64(3), b.Stats().Dropped)
}

func TestOrderPreservedPerPublisher(t *testing.T) {
	b := New()
	defer b.Close()

	_, ch := b.Subscribe(64)
	for i := 0; i < 20; i++ {
		b.Publish(Event{Type: TypeStatusUpdated, Host: fmt.Sprintf("h%d", i)})
	}
	for i := 0; i < 20; i++ {
		ev := recvOne(t, ch)
		require.Equal(t, fmt.Sprintf("h%d", i), ev.Host)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after unsubscribe")

	// Publishing afterwards must not panic or deliver.
	b.Publish(Event{Type: TypeConnectionRemoved, Host: "h"})
	assert.Equal(t, 0, b.Stats().Subscribers)

	// Unknown id is a no-op.
	b.Unsubscribe("missing")
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)

	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(Event{Type: TypeStatusUpdated, Host: "h"})
	assert.Equal(t, uint64(0), b.Stats().Published)

	_, late := b.Subscribe(1)
	_, open := <-late
	assert.False(t, open, "subscribe after close must return a closed channel")
}

func TestConcurrentPublishers(t *testing.T) {
	b := New()
	defer b.Close()

	_, ch := b.Subscribe(1024)
	done := make(chan struct{})
	for p := 0; p < 4; p++ {
		go func(p int) {
			for i := 0; i < 50; i++ {
				b.Publish(Event{Type: TypeStatusUpdated, Host: fmt.Sprintf("p%d", p)})
			}
			done <- struct{}{}
		}(p)
	}
	for p := 0; p < 4; p++ {
		<-done
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			require.Equal(t, 200, count)
			return
		}
	}
}
