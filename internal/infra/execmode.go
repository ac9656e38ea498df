package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps all state under the invoking user's home.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with host-wide state.
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds default paths for an execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	DataDir    string // store, key, registry and rules file
	SocketPath string // command socket
	LogPath    string
	IsRoot     bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			DataDir:    "/var/lib/webmon",
			SocketPath: "/var/run/webmon.sock",
			LogPath:    "/var/log/webmon/webmon.log",
			IsRoot:     true,
		}
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode paths regardless of current euid.
// Under sudo the invoking user's home is used.
func GetUserModeConfig() *ExecModeConfig {
	dataDir := filepath.Join(GetRealUserHome(), ".webmon")
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		DataDir:    dataDir,
		SocketPath: filepath.Join(dataDir, "webmon.sock"),
		LogPath:    filepath.Join(dataDir, "logs", "webmon.log"),
		IsRoot:     os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
