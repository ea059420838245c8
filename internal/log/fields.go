// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Connection fields
	FieldHost      = "host"
	FieldTransport = "transport"
	FieldSeq       = "seq"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
