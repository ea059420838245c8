// SPDX-License-Identifier: MIT

package vmix

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/state"
	"github.com/rs/zerolog"
)

// DefaultTCPTimeout bounds the dial, handshake and each request/reply
// exchange on the persistent session.
const DefaultTCPTimeout = 5 * time.Second

// maxXMLPayload caps a framed XML reply. A status document larger than
// this is treated as a protocol error.
const maxXMLPayload = 8 << 20

// TCPClient is the push variant: one persistent session per host. A
// background read loop decodes CRLF-framed lines; TALLY/ACTS push
// notifications trigger a full document fetch whose parsed snapshot is
// delivered on Snapshots. No external scheduling is needed once
// subscribed.
type TCPClient struct {
	host    string
	conn    net.Conn
	br      *bufio.Reader
	timeout time.Duration
	version string
	log     zerolog.Logger

	wmu   sync.Mutex // serializes writes to the session
	cmdMu sync.Mutex // one request/reply exchange at a time

	rmu     sync.Mutex
	replies map[string]chan tcpReply

	snaps     chan *state.Snapshot
	dirty     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type tcpReply struct {
	status string // "OK" or "ER"
	rest   string
	body   []byte // framed XML payload, when present
}

// DialTCP establishes the session, performs the version handshake and
// subscribes to push notifications before starting the read loop.
func DialTCP(ctx context.Context, host string, port int, timeout time.Duration) (*TCPClient, error) {
	if timeout <= 0 {
		timeout = DefaultTCPTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", joinHostPort(host, port))
	if err != nil {
		return nil, classify("dial", host, err)
	}

	c := &TCPClient{
		host:    host,
		conn:    conn,
		br:      bufio.NewReader(conn),
		timeout: timeout,
		log:     xlog.WithHost("vmix.tcp", host),
		replies: make(map[string]chan tcpReply),
		snaps:   make(chan *state.Snapshot, 4),
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()
	go c.refreshLoop()

	c.log.Info().Str("event", "session.established").Str("remote_version", c.version).Msg("tcp session established")
	return c, nil
}

// handshake consumes the greeting and subscribes to TALLY and ACTS. It
// runs before the read loop exists, so replies are read inline under a
// deadline.
func (c *TCPClient) handshake() error {
	deadline := time.Now().Add(c.timeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	line, err := c.readLine()
	if err != nil {
		return classify("handshake", c.host, err)
	}
	verb, status, rest := splitReply(line)
	if verb != "VERSION" || status != "OK" {
		return protocolError("handshake", c.host, "unexpected greeting %q", line)
	}
	c.version = rest

	for _, topic := range []string{"TALLY", "ACTS"} {
		if err := c.writeLine("SUBSCRIBE " + topic); err != nil {
			return err
		}
		// The service may interleave a first push line with the reply.
		for {
			line, err := c.readLine()
			if err != nil {
				return classify("subscribe", c.host, err)
			}
			verb, status, rest := splitReply(line)
			if verb != "SUBSCRIBE" {
				continue
			}
			if status != "OK" {
				return protocolError("subscribe", c.host, "subscription refused: %s %s", status, rest)
			}
			break
		}
	}
	return nil
}

// Version reports the remote version announced in the greeting.
func (c *TCPClient) Version() string {
	return c.version
}

// Snapshots returns the push snapshot stream. The channel closes when
// the session ends.
func (c *TCPClient) Snapshots() <-chan *state.Snapshot {
	return c.snaps
}

func (c *TCPClient) FetchStatus(ctx context.Context) (*state.Snapshot, error) {
	reply, err := c.request(ctx, "XML", "XML")
	if err != nil {
		return nil, err
	}
	snap, err := parseStatus(c.host, bytes.NewReader(reply.body))
	if err != nil {
		return nil, classify("status", c.host, err)
	}
	return snap, nil
}

func (c *TCPClient) FetchInputs(ctx context.Context) ([]state.Input, error) {
	snap, err := c.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Inputs, nil
}

func (c *TCPClient) FetchVideoLists(ctx context.Context) ([]state.VideoListInput, error) {
	snap, err := c.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return snap.VideoLists, nil
}

func (c *TCPClient) SendFunction(ctx context.Context, name string, params map[string]string) error {
	if name == "" {
		return protocolError("function", c.host, "empty function name")
	}
	line := "FUNCTION " + name
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		line += " " + q.Encode()
	}
	reply, err := c.request(ctx, "FUNCTION", line)
	if err != nil {
		return err
	}
	if reply.status != "OK" {
		return protocolError("function", c.host, "function %s rejected: %s", name, reply.rest)
	}
	return nil
}

func (c *TCPClient) SelectVideoListItem(ctx context.Context, inputNumber, itemIndex int) error {
	if itemIndex < 0 {
		return protocolError("select", c.host, "negative item index %d", itemIndex)
	}
	return c.SendFunction(ctx, "SelectIndex", selectIndexParams(inputNumber, itemIndex))
}

// Close tears the session down. Idempotent; pending requests fail with a
// session-closed error once the read loop exits.
func (c *TCPClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// request performs one command/reply exchange. Exchanges are serialized;
// the read loop routes the reply by verb.
func (c *TCPClient) request(ctx context.Context, verb, line string) (tcpReply, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	select {
	case <-c.done:
		return tcpReply{}, &Error{Sentinel: ErrNetwork, Op: strings.ToLower(verb), Host: c.host, Err: ErrClosed}
	default:
	}

	ch := make(chan tcpReply, 1)
	c.rmu.Lock()
	c.replies[verb] = ch
	c.rmu.Unlock()
	defer func() {
		c.rmu.Lock()
		delete(c.replies, verb)
		c.rmu.Unlock()
	}()

	if err := c.writeLine(line); err != nil {
		return tcpReply{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return tcpReply{}, &Error{Sentinel: ErrTimeout, Op: strings.ToLower(verb), Host: c.host}
	case <-ctx.Done():
		return tcpReply{}, classify(strings.ToLower(verb), c.host, ctx.Err())
	case <-c.done:
		return tcpReply{}, &Error{Sentinel: ErrNetwork, Op: strings.ToLower(verb), Host: c.host, Err: ErrClosed}
	}
}

// readLoop owns the session reader: it routes replies to waiters and
// turns push notifications into refresh triggers. It closes done on exit.
func (c *TCPClient) readLoop() {
	defer close(c.done)
	for {
		line, err := c.readLine()
		if err != nil {
			if err != io.EOF {
				c.log.Debug().Err(err).Str("event", "session.read_error").Msg("read loop ended")
			}
			_ = c.Close()
			return
		}
		verb, status, rest := splitReply(line)
		switch verb {
		case "TALLY", "ACTS":
			c.markDirty()
		case "XML":
			body, err := c.readPayload(status)
			if err != nil {
				c.log.Warn().Err(err).Str("event", "session.bad_frame").Msg("malformed XML frame")
				_ = c.Close()
				return
			}
			c.deliver(verb, tcpReply{status: "OK", body: body})
		case "VERSION":
			c.version = rest
		default:
			c.deliver(verb, tcpReply{status: status, rest: rest})
		}
	}
}

// refreshLoop folds push notifications into full snapshots. It is the
// only sender on snaps and closes it on exit.
func (c *TCPClient) refreshLoop() {
	defer close(c.snaps)
	for {
		select {
		case <-c.done:
			return
		case <-c.dirty:
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		snap, err := c.FetchStatus(ctx)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Str("event", "push.refresh_failed").Msg("push-triggered refresh failed")
			continue
		}
		// Latest wins: drop the oldest queued snapshot rather than block.
		for {
			select {
			case c.snaps <- snap:
			case <-c.done:
				return
			default:
				select {
				case <-c.snaps:
				default:
				}
				continue
			}
			break
		}
	}
}

func (c *TCPClient) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *TCPClient) deliver(verb string, reply tcpReply) {
	c.rmu.Lock()
	ch := c.replies[verb]
	c.rmu.Unlock()
	if ch != nil {
		select {
		case ch <- reply:
		default:
		}
	}
}

// readPayload reads a length-prefixed XML frame body. The prefix counts
// the payload bytes including the trailing CRLF.
func (c *TCPClient) readPayload(lengthField string) ([]byte, error) {
	n, err := strconv.Atoi(strings.TrimSpace(lengthField))
	if err != nil || n < 0 || n > maxXMLPayload {
		return nil, fmt.Errorf("invalid XML frame length %q", lengthField)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf, "\r\n"), nil
}

func (c *TCPClient) readLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *TCPClient) writeLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err := io.WriteString(c.conn, line+"\r\n")
	if err != nil {
		return classify("write", c.host, err)
	}
	return nil
}

// splitReply splits "VERB STATUS rest..." into its parts. Lines with
// fewer fields leave the remainder empty.
func splitReply(line string) (verb, status, rest string) {
	parts := strings.SplitN(line, " ", 3)
	verb = parts[0]
	if len(parts) > 1 {
		status = parts[1]
	}
	if len(parts) > 2 {
		rest = parts[2]
	}
	return verb, status, rest
}
