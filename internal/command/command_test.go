package command

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// socketPath returns a short path; unix socket paths are length limited.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// startServer runs srv until the test ends and waits for the socket.
func startServer(t *testing.T, srv *Server, path string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", path)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RequestResync(t *testing.T) {
	path := socketPath(t)
	var calls atomic.Int32

	srv := NewServer(path, zap.NewNop())
	srv.Handle(domain.ActionUpdateRules, func(ctx context.Context, msg domain.Message) (any, error) {
		calls.Add(1)
		return nil, nil
	})
	startServer(t, srv, path)

	client := NewClient(path)
	require.NoError(t, client.RequestResync(context.Background()))
	require.NoError(t, client.RequestResync(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Ping(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, zap.NewNop())
	srv.Handle(domain.ActionPing, func(ctx context.Context, msg domain.Message) (any, error) {
		return PingResult{PID: 4242, Version: "1.2.3"}, nil
	})
	startServer(t, srv, path)

	result, err := NewClient(path).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4242, result.PID)
	assert.Equal(t, "1.2.3", result.Version)
}

func TestClient_HandlerError(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, zap.NewNop())
	srv.Handle(domain.ActionUpdateRules, func(ctx context.Context, msg domain.Message) (any, error) {
		return nil, errors.New("engine rejected batch")
	})
	startServer(t, srv, path)

	err := NewClient(path).RequestResync(context.Background())

	var aerr *ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.ActionUpdateRules, aerr.Action)
	assert.Equal(t, "engine rejected batch", aerr.Message)
}

func TestClient_UnknownAction(t *testing.T) {
	path := socketPath(t)
	startServer(t, NewServer(path, zap.NewNop()), path)

	err := NewClient(path).Activate(context.Background())

	var aerr *ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Message, "unknown action")
}

func TestClient_DaemonNotRunning(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
	}{
		{
			name:  "no socket file",
			setup: func(t *testing.T, path string) {},
		},
		{
			name: "stale socket file",
			setup: func(t *testing.T, path string) {
				l, err := net.Listen("unix", path)
				require.NoError(t, err)
				// Closing a unix listener normally unlinks the file.
				l.(*net.UnixListener).SetUnlinkOnClose(false)
				l.Close()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := socketPath(t)
			tt.setup(t, path)

			err := NewClient(path).RequestResync(context.Background())
			assert.ErrorIs(t, err, domain.ErrDaemonNotRunning)
		})
	}
}

func TestServer_RemovesSocketOnShutdown(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_DuplicateHandlerPanics(t *testing.T) {
	srv := NewServer("unused", zap.NewNop())
	srv.Handle(domain.ActionPing, func(ctx context.Context, msg domain.Message) (any, error) { return nil, nil })
	assert.Panics(t, func() {
		srv.Handle(domain.ActionPing, func(ctx context.Context, msg domain.Message) (any, error) { return nil, nil })
	})
}

func TestCodec_MessageShape(t *testing.T) {
	data, err := Marshal(domain.Message{Action: domain.ActionUpdateRules})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, Unmarshal(data, &generic))
	assert.Equal(t, map[string]any{"action": "updateRules"}, generic)
}
