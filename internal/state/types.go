// SPDX-License-Identifier: MIT

// Package state holds the data model for vMix connections and the
// in-memory registry that owns it.
package state

// TransportKind selects how a connection talks to its vMix instance.
// It is fixed for the lifetime of a connection.
type TransportKind string

const (
	// TransportHTTP polls the stateless HTTP status endpoint.
	TransportHTTP TransportKind = "http"
	// TransportTCP holds a persistent session and receives push updates.
	TransportTCP TransportKind = "tcp"
)

// Valid reports whether k names a known transport.
func (k TransportKind) Valid() bool {
	return k == TransportHTTP || k == TransportTCP
}

// DefaultPort returns the conventional vMix port for the transport.
func (k TransportKind) DefaultPort() int {
	if k == TransportTCP {
		return 8099
	}
	return 8088
}

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Connection is the registry record for one vMix instance, keyed by host.
type Connection struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Label        string        `json:"label,omitempty"`
	Transport    TransportKind `json:"transport"`
	Status       Status        `json:"status"`
	ActiveInput  int           `json:"activeInput"`
	PreviewInput int           `json:"previewInput"`
	Version      string        `json:"version,omitempty"`
	Edition      string        `json:"edition,omitempty"`
	Preset       string        `json:"preset,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
}

// AutoRefreshConfig controls scheduled polling for one host. It has an
// independent lifecycle and may exist before the connection does.
type AutoRefreshConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalSeconds uint `json:"intervalSeconds" yaml:"intervalSeconds"`
}

// Input is one vMix input as reported by the status document.
type Input struct {
	Key    string `json:"key"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	State  string `json:"state"`
}

// VideoListItem is one entry of a VideoList input's playlist.
type VideoListItem struct {
	Key      string `json:"key"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	State    string `json:"state"`
	Selected bool   `json:"selected"`
	Enabled  bool   `json:"enabled"`
}

// VideoListInput is a vMix input of type VideoList with its ordered items.
// At most one item is selected; SelectedIndex, when non-nil, indexes it.
type VideoListInput struct {
	Key           string          `json:"key"`
	Number        int             `json:"number"`
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	State         string          `json:"state"`
	Items         []VideoListItem `json:"items"`
	SelectedIndex *int            `json:"selectedIndex"`
}

// Snapshot is the fully reconciled state of one host at one sequence
// number. Snapshots are rebuilt per observation, never mutated in place.
type Snapshot struct {
	Host         string
	Seq          uint64
	Version      string
	Edition      string
	Preset       string
	ActiveInput  int
	PreviewInput int
	Inputs       []Input
	VideoLists   []VideoListInput
}
