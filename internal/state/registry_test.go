// SPDX-License-Identifier: MIT

package state

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryInsertGetRemove(t *testing.T) {
	r := NewRegistry()

	c := Connection{Host: "10.0.0.1", Port: 8088, Transport: TransportHTTP, Status: StatusConnected}
	r.Insert(c)

	got, ok := r.Get("10.0.0.1")
	if !ok {
		t.Fatal("expected record after insert")
	}
	if got != c {
		t.Fatalf("got %+v, want %+v", got, c)
	}

	if !r.Remove("10.0.0.1") {
		t.Fatal("expected remove to report existing entry")
	}
	if r.Remove("10.0.0.1") {
		t.Fatal("second remove should report missing entry")
	}
	if _, ok := r.Get("10.0.0.1"); ok {
		t.Fatal("record still present after remove")
	}
}

func TestRegistryUpdateUnknownHostIsNoOp(t *testing.T) {
	r := NewRegistry()

	called := false
	if r.Update("ghost", func(*Connection) { called = true }) {
		t.Fatal("update of unknown host must return false")
	}
	if called {
		t.Fatal("fn must not be called for unknown host")
	}
	if r.Len() != 0 {
		t.Fatalf("update must not insert, len=%d", r.Len())
	}
}

func TestRegistryUpdateCannotChangeKey(t *testing.T) {
	r := NewRegistry()
	r.Insert(Connection{Host: "a", Status: StatusConnected})

	r.Update("a", func(c *Connection) {
		c.Host = "b"
		c.Status = StatusReconnecting
	})

	if _, ok := r.Get("b"); ok {
		t.Fatal("update must not re-key the record")
	}
	got, _ := r.Get("a")
	if got.Status != StatusReconnecting {
		t.Fatalf("status not applied: %+v", got)
	}
	if got.Host != "a" {
		t.Fatalf("host key mutated: %q", got.Host)
	}
}

func TestRegistryListReturnsSortedCopies(t *testing.T) {
	r := NewRegistry()
	r.Insert(Connection{Host: "b"})
	r.Insert(Connection{Host: "a"})
	r.Insert(Connection{Host: "c"})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("len=%d, want 3", len(list))
	}
	if list[0].Host != "a" || list[1].Host != "b" || list[2].Host != "c" {
		t.Fatalf("not sorted by host: %+v", list)
	}

	// Mutating the returned slice must not affect the registry.
	list[0].Status = StatusDisconnected
	got, _ := r.Get("a")
	if got.Status == StatusDisconnected {
		t.Fatal("List must return copies")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			host := fmt.Sprintf("host-%d", n)
			for j := 0; j < 100; j++ {
				r.Insert(Connection{Host: host, ActiveInput: j})
				r.Update(host, func(c *Connection) { c.PreviewInput = j })
				r.Get(host)
				r.List()
			}
		}(i)
	}
	wg.Wait()
	if r.Len() != 8 {
		t.Fatalf("len=%d, want 8", r.Len())
	}
}

func TestCountByStatus(t *testing.T) {
	r := NewRegistry()
	r.Insert(Connection{Host: "a", Status: StatusConnected})
	r.Insert(Connection{Host: "b", Status: StatusReconnecting})
	r.Insert(Connection{Host: "c", Status: StatusConnected})

	if n := r.CountByStatus(StatusConnected); n != 2 {
		t.Fatalf("connected=%d, want 2", n)
	}
	if n := r.CountByStatus(StatusReconnecting); n != 1 {
		t.Fatalf("reconnecting=%d, want 1", n)
	}
}
