package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrUnexpectedReply  = errors.New("unexpected reply from daemon")
)

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns defaults for a socket at path.
func DefaultClientConfig(path string) ClientConfig {
	return ClientConfig{
		SocketPath:     path,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Client sends control requests over a single connection. Requests are
// serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	config  ClientConfig
	nextReq uint32
}

// Dial connects to the daemon socket.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.Dial("unix", cfg.SocketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("connect %s: %w", cfg.SocketPath, err)
	}
	return &Client{conn: conn, config: cfg}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Call sends a request of type t carrying req, waits for the reply and
// decodes it into resp. An MsgError reply is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, t MessageType, req, resp any) (MessageType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, ErrNotConnected
	}

	var payload []byte
	if req != nil {
		var err error
		if payload, err = Encode(req); err != nil {
			return 0, fmt.Errorf("encode %s: %w", t, err)
		}
	}

	c.nextReq++
	reqID := c.nextReq

	deadline := time.Now().Add(c.config.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := NewMessage(t, reqID, payload).Write(c.conn); err != nil {
		return 0, fmt.Errorf("send %s: %w", t, err)
	}

	reply, err := ReadMessage(c.conn)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return 0, context.DeadlineExceeded
		}
		return 0, fmt.Errorf("read reply to %s: %w", t, err)
	}
	if reply.Header.RequestID != reqID {
		return 0, fmt.Errorf("%w: request id %d, want %d", ErrUnexpectedReply, reply.Header.RequestID, reqID)
	}

	if reply.Header.Type == MsgError {
		var e ErrorResponse
		if err := Decode(reply.Payload, &e); err != nil {
			return MsgError, fmt.Errorf("decode error reply: %w", err)
		}
		return MsgError, &RemoteError{Code: e.Code, Message: e.Message}
	}

	if resp != nil {
		if err := Decode(reply.Payload, resp); err != nil {
			return reply.Header.Type, fmt.Errorf("decode %s: %w", reply.Header.Type, err)
		}
	}
	return reply.Header.Type, nil
}

func (c *Client) expect(ctx context.Context, t, want MessageType, req, resp any) error {
	got, err := c.Call(ctx, t, req, resp)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s, want %s", ErrUnexpectedReply, got, want)
	}
	return nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.expect(ctx, MsgPing, MsgPong, nil, nil)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.expect(ctx, MsgStatusRequest, MsgStatusResponse, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload asks the daemon to reload its snippet list.
func (c *Client) Reload(ctx context.Context) (*ReloadResponse, error) {
	var resp ReloadResponse
	if err := c.expect(ctx, MsgReload, MsgReloadResp, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetSound turns the firing sound on or off.
func (c *Client) SetSound(ctx context.Context, on bool) (bool, error) {
	var resp SoundResponse
	err := c.expect(ctx, MsgSetSound, MsgSetSoundResp, &SoundRequest{On: on}, &resp)
	return resp.Sound, err
}

// ToggleSound flips the firing sound and returns the new state.
func (c *Client) ToggleSound(ctx context.Context) (bool, error) {
	var resp SoundResponse
	err := c.expect(ctx, MsgSetSound, MsgSetSoundResp, &SoundRequest{Toggle: true}, &resp)
	return resp.Sound, err
}

// Reset clears the daemon's input buffer.
func (c *Client) Reset(ctx context.Context) error {
	return c.expect(ctx, MsgReset, MsgResetResp, nil, nil)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.expect(ctx, MsgShutdown, MsgShutdownResp, nil, nil)
}
