package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// RegistryFileName is the daemon registry file inside the data directory.
const RegistryFileName = "daemon.json"

// FileRegistry implements domain.DaemonRegistry using a JSON file.
// Every read-modify-write holds an flock on a sibling lock file.
type FileRegistry struct {
	path           string
	processName    string
	processManager domain.ProcessManager
	now            func() time.Time
}

// NewFileRegistry creates a registry in dataDir. processName is the expected
// executable name of the daemon, used to reject a recycled pid; empty skips
// the check.
func NewFileRegistry(dataDir, processName string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           filepath.Join(dataDir, RegistryFileName),
		processName:    processName,
		processManager: pm,
		now:            time.Now,
	}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register records the daemon, replacing any previous entry.
func (r *FileRegistry) Register(entry domain.RegistryEntry) error {
	return r.locked(func(_ *domain.RegistryEntry) (*domain.RegistryEntry, error) {
		now := r.now().Unix()
		entry.Version = 1
		if entry.StartedAt == 0 {
			entry.StartedAt = now
		}
		entry.LastHeartbeat = now
		if entry.Mode == "" {
			entry.Mode = string(DetectExecMode().Mode)
		}
		return &entry, nil
	})
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat() error {
	return r.locked(func(cur *domain.RegistryEntry) (*domain.RegistryEntry, error) {
		if cur == nil {
			return nil, fmt.Errorf("daemon not registered")
		}
		cur.LastHeartbeat = r.now().Unix()
		return cur, nil
	})
}

// RecordResync stores when the rules were last rewritten and how many.
func (r *FileRegistry) RecordResync(at time.Time, rules int) error {
	return r.locked(func(cur *domain.RegistryEntry) (*domain.RegistryEntry, error) {
		if cur == nil {
			return nil, fmt.Errorf("daemon not registered")
		}
		cur.LastResync = at.Unix()
		cur.ActiveRules = rules
		return cur, nil
	})
}

// IsDaemonAlive checks the registered pid, and its name when known.
func (r *FileRegistry) IsDaemonAlive() (bool, error) {
	entry, err := r.GetAll()
	if err != nil {
		return false, err
	}
	if entry == nil || entry.DaemonPID == 0 {
		return false, nil
	}
	if !r.processManager.IsRunning(entry.DaemonPID) {
		return false, nil
	}
	if r.processName == "" {
		return true, nil
	}
	name, err := r.processManager.NameOf(entry.DaemonPID)
	if err != nil {
		// Exists but unreadable, e.g. owned by another user.
		return true, nil
	}
	return strings.Contains(name, r.processName), nil
}

// GetAll returns the registry state, nil if nothing is registered.
func (r *FileRegistry) GetAll() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt registry %s: %w", r.path, err)
	}
	return &entry, nil
}

// Unregister removes the entry if it still names pid. An entry written by
// a daemon that registered since is left in place.
func (r *FileRegistry) Unregister(pid int) error {
	return r.withLock(func() error {
		cur, err := r.GetAll()
		if err == nil && (cur == nil || cur.DaemonPID != pid) {
			return nil
		}
		err = os.Remove(r.path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
}

// locked runs a read-modify-write of the entry under an exclusive flock.
func (r *FileRegistry) locked(fn func(cur *domain.RegistryEntry) (*domain.RegistryEntry, error)) error {
	return r.withLock(func() error {
		cur, err := r.GetAll()
		if err != nil {
			cur = nil // overwrite a corrupt file
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		return atomicWriteJSON(r.path, next)
	})
}

// withLock runs fn holding the registry's exclusive flock.
func (r *FileRegistry) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return err
	}
	unlock, err := lockFile(r.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// lockFile takes an exclusive flock on path, creating it if needed.
func lockFile(path string) (unlock func(), err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// atomicWriteJSON writes v to path via a per-process temp file and rename.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
