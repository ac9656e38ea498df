package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 64 * 1024
)

// HandlerFunc processes one request. A non-nil result is returned in the
// response's data field.
type HandlerFunc func(ctx context.Context, msg domain.Message) (any, error)

// Response is the envelope of every reply.
type Response struct {
	OK    bool       `cbor:"ok"`
	Error string     `cbor:"error,omitempty"`
	Data  RawMessage `cbor:"data,omitempty"`
}

// PingResult is the data returned for the ping action.
type PingResult struct {
	PID     int    `cbor:"pid"`
	Version string `cbor:"version"`
}

// Server serves the command protocol on a unix socket. Each connection
// carries exactly one request and one response.
type Server struct {
	socketPath string
	handlers   map[string]HandlerFunc
	logger     *zap.Logger

	active sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath.
func NewServer(socketPath string, logger *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		logger:     logger,
	}
}

// Handle registers the handler for action. Must be called before Serve.
func (s *Server) Handle(action string, h HandlerFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("command: duplicate handler for action %q", action))
	}
	s.handlers[action] = h
}

// Serve accepts connections until ctx is cancelled, then waits for in-flight
// requests. A stale socket file is removed first; the socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("restricting socket permissions: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("command server listening", zap.String("socket", s.socketPath))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var msg domain.Message
	if err := newDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&msg); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.write(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if msg.Action == "" {
		s.write(conn, Response{Error: "missing required field: action"})
		return
	}

	handler, ok := s.handlers[msg.Action]
	if !ok {
		s.logger.Debug("unknown action", zap.String("action", msg.Action))
		s.write(conn, Response{Error: fmt.Sprintf("unknown action %q", msg.Action)})
		return
	}

	result, err := handler(ctx, msg)
	if err != nil {
		s.logger.Warn("action failed", zap.String("action", msg.Action), zap.Error(err))
		s.write(conn, Response{Error: err.Error()})
		return
	}

	resp := Response{OK: true}
	if result != nil {
		data, err := Marshal(result)
		if err != nil {
			s.write(conn, Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)})
			return
		}
		resp.Data = data
	}
	s.write(conn, resp)
}

func (s *Server) write(conn net.Conn, resp Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := newEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}
