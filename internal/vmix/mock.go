// SPDX-License-Identifier: MIT

package vmix

import (
	"context"
	"sync"

	"github.com/ManuGH/vmixd/internal/state"
)

// MockClient is a scriptable Client for tests. Behaviour is overridden
// through function fields; unset fields return zero values. Call counts
// are tracked for single-in-flight and teardown assertions.
type MockClient struct {
	FetchStatusFn   func(ctx context.Context) (*state.Snapshot, error)
	SendFunctionFn  func(ctx context.Context, name string, params map[string]string) error
	SelectFn        func(ctx context.Context, inputNumber, itemIndex int) error
	CloseFn         func() error
	SnapshotsCh     chan *state.Snapshot // non-nil makes the mock a Pusher

	mu           sync.Mutex
	fetchCalls   int
	funcCalls    int
	selectCalls  int
	closeCalls   int
	lastFunction string
	lastParams   map[string]string
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) FetchStatus(ctx context.Context) (*state.Snapshot, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.mu.Unlock()
	if m.FetchStatusFn != nil {
		return m.FetchStatusFn(ctx)
	}
	return &state.Snapshot{}, nil
}

func (m *MockClient) FetchInputs(ctx context.Context) ([]state.Input, error) {
	snap, err := m.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Inputs, nil
}

func (m *MockClient) FetchVideoLists(ctx context.Context) ([]state.VideoListInput, error) {
	snap, err := m.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return snap.VideoLists, nil
}

func (m *MockClient) SendFunction(ctx context.Context, name string, params map[string]string) error {
	m.mu.Lock()
	m.funcCalls++
	m.lastFunction = name
	m.lastParams = params
	m.mu.Unlock()
	if m.SendFunctionFn != nil {
		return m.SendFunctionFn(ctx, name, params)
	}
	return nil
}

func (m *MockClient) SelectVideoListItem(ctx context.Context, inputNumber, itemIndex int) error {
	m.mu.Lock()
	m.selectCalls++
	m.mu.Unlock()
	if m.SelectFn != nil {
		return m.SelectFn(ctx, inputNumber, itemIndex)
	}
	return m.SendFunction(ctx, "SelectIndex", selectIndexParams(inputNumber, itemIndex))
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	if m.SnapshotsCh != nil {
		// Mirror the real push client: the stream ends with the session.
		defer func() { _ = recover() }()
		close(m.SnapshotsCh)
	}
	return nil
}

// Snapshots implements Pusher when SnapshotsCh is set.
func (m *MockClient) Snapshots() <-chan *state.Snapshot {
	return m.SnapshotsCh
}

// FetchCalls returns how many status fetches were issued.
func (m *MockClient) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// CloseCalls returns how many times Close was invoked.
func (m *MockClient) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// LastFunction returns the most recent function name and parameters.
func (m *MockClient) LastFunction() (string, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFunction, m.lastParams
}
