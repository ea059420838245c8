// SPDX-License-Identifier: MIT

package vmix

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/state"
	"github.com/rs/zerolog"
)

// DefaultHTTPTimeout bounds every HTTP request. Each call is independent;
// the client holds no session state.
const DefaultHTTPTimeout = 5 * time.Second

// HTTPClient is the pull variant: stateless request/response against the
// vMix web API. Someone else must call it on a schedule.
type HTTPClient struct {
	host string
	base string
	http *http.Client
	log  zerolog.Logger
}

// NewHTTP returns a pull client for host:port. A non-positive timeout
// falls back to DefaultHTTPTimeout.
func NewHTTP(host string, port int, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{
		host: host,
		base: fmt.Sprintf("http://%s/api", joinHostPort(host, port)),
		http: &http.Client{Timeout: timeout},
		log:  xlog.WithHost("vmix.http", host),
	}
}

func (c *HTTPClient) FetchStatus(ctx context.Context) (*state.Snapshot, error) {
	body, err := c.get(ctx, "status", nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	snap, err := parseStatus(c.host, body)
	if err != nil {
		return nil, classify("status", c.host, err)
	}
	return snap, nil
}

func (c *HTTPClient) FetchInputs(ctx context.Context) ([]state.Input, error) {
	snap, err := c.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Inputs, nil
}

func (c *HTTPClient) FetchVideoLists(ctx context.Context) ([]state.VideoListInput, error) {
	snap, err := c.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}
	return snap.VideoLists, nil
}

func (c *HTTPClient) SendFunction(ctx context.Context, name string, params map[string]string) error {
	if name == "" {
		return protocolError("function", c.host, "empty function name")
	}
	q := url.Values{}
	q.Set("Function", name)
	for k, v := range params {
		q.Set(k, v)
	}
	body, err := c.get(ctx, "function "+name, q)
	if err != nil {
		return err
	}
	defer body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	c.log.Debug().Str("event", "function.sent").Str("function", name).Msg("function executed")
	return nil
}

func (c *HTTPClient) SelectVideoListItem(ctx context.Context, inputNumber, itemIndex int) error {
	if itemIndex < 0 {
		return protocolError("select", c.host, "negative item index %d", itemIndex)
	}
	return c.SendFunction(ctx, "SelectIndex", selectIndexParams(inputNumber, itemIndex))
}

// Close is a no-op for the stateless variant beyond releasing idle
// connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// get performs one bounded request and classifies failures.
func (c *HTTPClient) get(ctx context.Context, op string, q url.Values) (io.ReadCloser, error) {
	u := c.base
	if len(q) > 0 {
		u += "/?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, classify(op, c.host, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, classify(op, c.host, err)
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		return nil, protocolError(op, c.host, "unexpected HTTP status %d", res.StatusCode)
	}
	return res.Body, nil
}

func joinHostPort(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
