package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// AutostartLabel names the launchd job and the systemd unit.
const AutostartLabel = "com.webmon.daemon"

// launchd plist, LaunchAgent (user) or LaunchDaemon (root).
const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>
{{- if .User}}

    <key>ProcessType</key>
    <string>Background</string>
{{- end}}

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>
`

// systemd unit, user or system instance.
const systemdTemplate = `[Unit]
Description=webmon website blocking scheduler

[Service]
ExecStart={{join .Args}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy={{if .User}}default.target{{else}}multi-user.target{{end}}
`

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(name string, args ...string) error
}

// ExecCommandRunner executes real system commands.
type ExecCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (ExecCommandRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

type unitConfig struct {
	Label string
	Args  []string
	User  bool
}

// AutostartManager installs a launchd job (macOS) or systemd unit (Linux)
// that runs the daemon at login or boot.
type AutostartManager struct {
	system   string // "launchd" or "systemd"
	user     bool
	path     string
	template *template.Template
	runner   CommandRunner
}

// NewAutostartManager picks the service manager for this OS and mode.
func NewAutostartManager(mode *ExecModeConfig, runner CommandRunner) (*AutostartManager, error) {
	user := mode.Mode == ExecModeUser
	home := GetRealUserHome()

	switch runtime.GOOS {
	case "darwin":
		path := filepath.Join("/Library/LaunchDaemons", AutostartLabel+".plist")
		if user {
			path = filepath.Join(home, "Library/LaunchAgents", AutostartLabel+".plist")
		}
		return newAutostart("launchd", path, user, runner), nil
	case "linux":
		path := filepath.Join("/etc/systemd/system", AutostartLabel+".service")
		if user {
			path = filepath.Join(home, ".config/systemd/user", AutostartLabel+".service")
		}
		return newAutostart("systemd", path, user, runner), nil
	default:
		return nil, fmt.Errorf("autostart not supported on %s", runtime.GOOS)
	}
}

func newAutostart(system, path string, user bool, runner CommandRunner) *AutostartManager {
	text := launchdTemplate
	if system == "systemd" {
		text = systemdTemplate
	}
	tmpl := template.Must(template.New(system).Funcs(template.FuncMap{
		"join": joinArgs,
	}).Parse(text))

	return &AutostartManager{
		system:   system,
		user:     user,
		path:     path,
		template: tmpl,
		runner:   runner,
	}
}

// Path returns the unit file path.
func (m *AutostartManager) Path() string {
	return m.path
}

// IsInstalled checks if the unit file exists.
func (m *AutostartManager) IsInstalled() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// NeedsUpdate reports whether the installed unit differs from the one
// Install would write.
func (m *AutostartManager) NeedsUpdate(execPath, configPath string) bool {
	if !m.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(m.path)
	if err != nil {
		return true
	}
	expected, err := m.render(execPath, configPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Install writes the unit and loads it. An existing unit is replaced.
func (m *AutostartManager) Install(execPath, configPath string) error {
	content, err := m.render(execPath, configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}

	if m.IsInstalled() {
		_ = m.unload()
	}
	if err := os.WriteFile(m.path, content, 0644); err != nil {
		return err
	}
	return m.load()
}

// Uninstall unloads and removes the unit.
func (m *AutostartManager) Uninstall() error {
	_ = m.unload()
	err := os.Remove(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (m *AutostartManager) render(execPath, configPath string) ([]byte, error) {
	args := []string{execPath, "daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	var buf bytes.Buffer
	err := m.template.Execute(&buf, unitConfig{Label: AutostartLabel, Args: args, User: m.user})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s unit: %w", m.system, err)
	}
	return buf.Bytes(), nil
}

func (m *AutostartManager) load() error {
	if m.system == "launchd" {
		return m.runner.Run("launchctl", "load", m.path)
	}
	if err := m.runner.Run("systemctl", m.systemctlArgs("daemon-reload")...); err != nil {
		return err
	}
	return m.runner.Run("systemctl", m.systemctlArgs("enable", "--now", filepath.Base(m.path))...)
}

func (m *AutostartManager) unload() error {
	if m.system == "launchd" {
		return m.runner.Run("launchctl", "unload", m.path)
	}
	return m.runner.Run("systemctl", m.systemctlArgs("disable", "--now", filepath.Base(m.path))...)
}

func (m *AutostartManager) systemctlArgs(args ...string) []string {
	if m.user {
		return append([]string{"--user"}, args...)
	}
	return args
}

// joinArgs quotes arguments for an ExecStart line.
func joinArgs(args []string) string {
	var buf strings.Builder
	for i, a := range args {
		if i > 0 {
			buf.WriteByte(' ')
		}
		if strings.ContainsAny(a, " \t\"'\\") {
			buf.WriteString(strconv.Quote(a))
			continue
		}
		buf.WriteString(a)
	}
	return buf.String()
}

// Ensure AutostartManager implements domain.AutostartManager.
var _ domain.AutostartManager = (*AutostartManager)(nil)
