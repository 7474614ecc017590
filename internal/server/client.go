package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/linskybing/device-arbiter/internal/scheduler"
)

// ReleaseRetryAttempts bounds how often Client.Release retries transient
// failures. Can be adjusted in tests.
var ReleaseRetryAttempts = 3

// releaseBackoff is the wait after failed attempt i. Can be adjusted in tests.
var releaseBackoff = func(i int) time.Duration {
	return time.Duration(100*(i+1)) * time.Millisecond
}

// Client talks to an arbiter Server over its unix socket.
type Client struct {
	http *http.Client
}

// NewClient returns a client for the arbiter listening on socketPath.
func NewClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// Select asks the arbiter for a device. Errors returned by the arbiter wrap
// the matching scheduler sentinel where one exists.
func (c *Client) Select(ctx context.Context, req SelectRequest) (SelectResponse, error) {
	var resp SelectResponse
	if err := c.do(ctx, http.MethodPost, "/select", req, &resp); err != nil {
		return SelectResponse{}, err
	}
	return resp, nil
}

// Release drops a reservation, retrying a few times on transient errors.
// A 4xx answer is returned at once.
func (c *Client) Release(ctx context.Context, importance scheduler.Importance, uniqueName string) error {
	req := ReleaseRequest{Importance: importance, UniqueName: uniqueName}
	attempts := max(ReleaseRetryAttempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := c.do(ctx, http.MethodPost, "/release", req, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			return err
		}
		klog.InfoS("release attempt failed", "device", uniqueName, "importance", importance, "err", err, "attempt", i+1)
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(releaseBackoff(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	klog.ErrorS(lastErr, "release failed after retries", "device", uniqueName, "importance", importance)
	return lastErr
}

// Status fetches the pool and reservation table.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return errorForStatus(resp.StatusCode, path, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-200 answer from the arbiter. It unwraps to the
// matching scheduler sentinel where one exists.
type StatusError struct {
	Code    int
	Path    string
	Message string
	err     error
}

func (e *StatusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%v: %s", e.err, e.Message)
	}
	return fmt.Sprintf("%s request returned status %d: %s", e.Path, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.err }

func errorForStatus(code int, path, msg string) error {
	e := &StatusError{Code: code, Path: path, Message: msg}
	switch code {
	case http.StatusNotFound:
		e.err = scheduler.ErrNoCapableDevice
	case http.StatusServiceUnavailable:
		e.err = scheduler.ErrDevicesExhausted
	}
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	return e
}
