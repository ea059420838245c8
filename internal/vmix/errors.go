// SPDX-License-Identifier: MIT

package vmix

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for errors.Is checks at the boundary. The scheduler
// treats all three identically as one poll failure; the split exists for
// logging and for surfacing precise command errors to callers.
var (
	ErrNetwork  = errors.New("vmix: host unreachable or transport failure")
	ErrTimeout  = errors.New("vmix: request timed out")
	ErrProtocol = errors.New("vmix: malformed or unexpected response")
	ErrClosed   = errors.New("vmix: client is closed")
)

// Error wraps a sentinel with call context.
type Error struct {
	Sentinel error
	Op       string
	Host     string
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("vmix: %s %s: %v", e.Op, e.Host, e.Sentinel)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// classify wraps err with the sentinel matching its failure class.
func classify(op, host string, err error) error {
	if err == nil {
		return nil
	}
	sentinel := ErrNetwork
	var nerr net.Error
	var xerr *xml.SyntaxError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		sentinel = ErrTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		sentinel = ErrTimeout
	case errors.As(err, &xerr):
		sentinel = ErrProtocol
	case errors.Is(err, ErrProtocol):
		sentinel = ErrProtocol
	}
	return &Error{Sentinel: sentinel, Op: op, Host: host, Err: err}
}

// protocolError builds a classified protocol error from a description.
func protocolError(op, host, format string, args ...any) error {
	return &Error{
		Sentinel: ErrProtocol,
		Op:       op,
		Host:     host,
		Err:      fmt.Errorf(format, args...),
	}
}
