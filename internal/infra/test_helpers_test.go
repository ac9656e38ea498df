package infra

import (
	"fmt"
	"os"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	names       map[int]string
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", fmt.Errorf("no process %d", pid)
	}
	return name, nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, name string) {
	m.runningPIDs[pid] = true
	if name != "" {
		m.names[pid] = name
	}
}
