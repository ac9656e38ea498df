package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	dialTimeout     = 2 * time.Second
	responseTimeout = 30 * time.Second
)

// ActionError is a request the daemon received and refused.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("daemon refused %q: %s", e.Action, e.Message)
}

// Client sends commands to the daemon. Each call opens a new connection.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// RequestResync asks the daemon to rebuild the rules now.
// Returns domain.ErrDaemonNotRunning when nothing is listening.
func (c *Client) RequestResync(ctx context.Context) error {
	return c.Call(ctx, domain.ActionUpdateRules, nil)
}

// Activate delivers the install trigger to a running daemon.
func (c *Client) Activate(ctx context.Context) error {
	return c.Call(ctx, domain.ActionActivate, nil)
}

// Ping checks the daemon is responsive.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := c.Call(ctx, domain.ActionPing, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Call sends {action} and decodes the response data into result, if non-nil.
func (c *Client) Call(ctx context.Context, action string, result any) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if isNotListening(err) {
			return domain.ErrDaemonNotRunning
		}
		return fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(responseTimeout))
	}

	if err := newEncoder(conn).Encode(domain.Message{Action: action}); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var resp Response
	if err := newDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if !resp.OK {
		return &ActionError{Action: action, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

func isNotListening(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Ensure Client implements domain.ResyncRequester.
var _ domain.ResyncRequester = (*Client)(nil)
