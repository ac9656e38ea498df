package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/command"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Pinger checks whether a daemon answers on the command socket.
type Pinger interface {
	Ping(ctx context.Context) (*command.PingResult, error)
}

// Spawn starts "<executable> daemon [--config path]" detached from the
// caller's session. It does not wait for the daemon to come up.
func Spawn(executable, configPath string) error {
	if executable == "" {
		var err error
		executable, err = os.Executable()
		if err != nil {
			return err
		}
	}

	args := []string{"daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(executable, args...)

	// New session so the daemon outlives the terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// Don't leave a zombie if the daemon exits early.
	go func() { _ = cmd.Wait() }()
	return nil
}

// WaitReady polls p until the daemon answers or timeout elapses.
func WaitReady(ctx context.Context, p Pinger, timeout time.Duration) (*command.PingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		result, err := p.Ping(ctx)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrDaemonNotRunning) && ctx.Err() == nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("daemon did not come up within %s", timeout)
		case <-ticker.C:
		}
	}
}
