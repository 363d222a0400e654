package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&SoundRequest{Toggle: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewMessage(MsgSetSound, 7, payload).Write(&buf))
	assert.Equal(t, HeaderSize+len(payload), buf.Len())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgSetSound, msg.Header.Type)
	assert.Equal(t, uint32(7), msg.Header.RequestID)
	assert.Equal(t, FlagJSON, msg.Header.Flags)

	var req SoundRequest
	require.NoError(t, Decode(msg.Payload, &req))
	assert.True(t, req.Toggle)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	raw := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(raw, 0xDEADBEEF)
	_, err := ReadHeader(bytes.NewReader(raw))
	assert.ErrorContains(t, err, "invalid magic")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Magic: ProtocolMagic, Version: ProtocolVersion, Type: MsgPing, Length: MaxPayload + 1}
	require.NoError(t, h.Write(&buf))

	_, err := ReadMessage(&buf)
	assert.ErrorContains(t, err, "payload too large")
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "status", MsgStatusRequest.String())
	assert.Equal(t, "type-0x0999", MessageType(0x0999).String())
}

// shortSocketPath keeps the path under the sun_path limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "snipit")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startServer(t *testing.T, h Handler) *Server {
	t.Helper()
	srv, err := NewServer(DefaultServerConfig(shortSocketPath(t)), h)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dial(t *testing.T, srv *Server) *Client {
	t.Helper()
	c, err := Dial(DefaultClientConfig(srv.SocketPath()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientServer(t *testing.T) {
	sound := false
	srv := startServer(t, HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		switch msg.Header.Type {
		case MsgStatusRequest:
			return NewResponse(MsgStatusResponse, 0, &StatusResponse{Snippets: 6, Sound: sound})
		case MsgSetSound:
			var req SoundRequest
			if err := Decode(msg.Payload, &req); err != nil {
				return nil, err
			}
			if req.Toggle {
				sound = !sound
			} else {
				sound = req.On
			}
			return NewResponse(MsgSetSoundResp, 0, &SoundResponse{Sound: sound})
		case MsgReset:
			return NewResponse(MsgResetResp, 0, nil)
		}
		return NewErrorMessage(0, ErrInvalidRequest, "unsupported"), nil
	}))

	info, err := os.Stat(srv.SocketPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	c := dial(t, srv)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Snippets)
	assert.False(t, st.Sound)

	on, err := c.ToggleSound(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = c.SetSound(ctx, false)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, c.Reset(ctx))

	_, err = c.Reload(ctx)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ErrInvalidRequest, remote.Code)
	assert.Equal(t, "unsupported", remote.Message)
}

func TestHandlerErrorBecomesRemoteError(t *testing.T) {
	srv := startServer(t, HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		return nil, errors.New("table unreadable")
	}))
	c := dial(t, srv)

	_, err := c.Reload(context.Background())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ErrInternalError, remote.Code)
	assert.Contains(t, remote.Message, "table unreadable")
}

func TestUnexpectedReplyType(t *testing.T) {
	srv := startServer(t, HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		return NewResponse(MsgResetResp, 0, nil)
	}))
	c := dial(t, srv)

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestDialWithoutDaemon(t *testing.T) {
	_, err := Dial(DefaultClientConfig(shortSocketPath(t)))
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestStopRemovesSocket(t *testing.T) {
	srv, err := NewServer(DefaultServerConfig(shortSocketPath(t)), HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	c, err := Dial(DefaultClientConfig(srv.SocketPath()))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())

	_, err = os.Stat(srv.SocketPath())
	assert.True(t, os.IsNotExist(err))
}

func TestStartRefusesLiveSocket(t *testing.T) {
	srv := startServer(t, HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		return nil, nil
	}))

	second, err := NewServer(DefaultServerConfig(srv.SocketPath()), HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	assert.ErrorContains(t, second.Start(), "in use")
}

func TestCleanupSocketRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	assert.Error(t, CleanupSocket(path))
	assert.NoError(t, CleanupSocket(filepath.Join(t.TempDir(), "missing")))
}

func TestCallHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := startServer(t, HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return NewResponse(MsgResetResp, 0, nil)
	}))
	defer close(release)
	c := dial(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	err := c.Reset(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
