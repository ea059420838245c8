// SPDX-License-Identifier: MIT

// Package vmix implements the transport clients that talk to one vMix
// instance: a stateless HTTP pull variant and a persistent TCP push
// variant. Both populate the state model; wire-format concerns stay here.
package vmix

import (
	"context"
	"strconv"

	"github.com/ManuGH/vmixd/internal/state"
)

// Client is the per-connection capability set. The variant is chosen at
// connect time and never changes for the lifetime of a connection.
type Client interface {
	// FetchStatus retrieves the full status document: scalar fields,
	// inputs and video lists. The returned snapshot carries no sequence
	// number; the caller assigns one.
	FetchStatus(ctx context.Context) (*state.Snapshot, error)

	// FetchInputs retrieves the current input list.
	FetchInputs(ctx context.Context) ([]state.Input, error)

	// FetchVideoLists retrieves the current VideoList inputs.
	FetchVideoLists(ctx context.Context) ([]state.VideoListInput, error)

	// SendFunction executes a named vMix function with parameters.
	// Fire-and-forget: the error is the caller's to handle, never retried.
	SendFunction(ctx context.Context, name string, params map[string]string) error

	// SelectVideoListItem selects item itemIndex (0-based) in the
	// VideoList input with the given number.
	SelectVideoListItem(ctx context.Context, inputNumber, itemIndex int) error

	// Close releases transport resources. Best effort, idempotent.
	Close() error
}

// Pusher is implemented by transports that deliver snapshots on their
// own, without external scheduling. The channel closes when the session
// ends.
type Pusher interface {
	Snapshots() <-chan *state.Snapshot
}

// Dialer creates a client for a host. The supervisor takes a Dialer so
// tests can substitute scripted clients.
type Dialer func(ctx context.Context, host string, port int, kind state.TransportKind) (Client, error)

// selectIndexParams builds the wire parameters for item selection.
// vMix counts list items from 1; the model is 0-based.
func selectIndexParams(inputNumber, itemIndex int) map[string]string {
	return map[string]string{
		"Input": strconv.Itoa(inputNumber),
		"Value": strconv.Itoa(itemIndex + 1),
	}
}
