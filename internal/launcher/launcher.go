// Package launcher starts a Chrome window with a remote debugging port for
// the operator to log into before a run.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const DefaultStartURL = "https://credenciado.amil.com.br/"

const probeTimeout = 600 * time.Millisecond

// Options describes the debug browser to start.
type Options struct {
	Port       int
	ProfileDir string
	Binary     string
	StartURL   string
}

// Command returns the argv that starts the debug browser.
func Command(o Options) []string {
	bin := o.Binary
	if bin == "" {
		bin = DefaultBinary()
	}
	start := o.StartURL
	if start == "" {
		start = DefaultStartURL
	}
	return []string{
		bin,
		"--remote-debugging-port=" + strconv.Itoa(o.Port),
		"--user-data-dir=" + o.ProfileDir,
		"--new-window",
		start,
	}
}

// candidates are checked in order by DefaultBinary.
var candidates = map[string][]string{
	"windows": {
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	},
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
}

var pathNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

// DefaultBinary finds an installed Chrome, falling back to a bare name left
// to the OS to resolve.
func DefaultBinary() string {
	for _, c := range candidates[runtime.GOOS] {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	for _, n := range pathNames {
		if p, err := exec.LookPath(n); err == nil {
			return p
		}
	}
	if runtime.GOOS == "windows" {
		return "chrome.exe"
	}
	return "google-chrome"
}

// PortOpen reports whether something accepts TCP connections on the local
// debug port.
func PortOpen(ctx context.Context, port int) bool {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// DebugURL is the HTTP endpoint of the debug port.
func DebugURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

// Launch starts the debug browser unless the port is already served, in
// which case it returns false and does nothing. The browser is detached and
// outlives the caller.
func Launch(ctx context.Context, o Options, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if PortOpen(ctx, o.Port) {
		logger.Info("debug port already open, reusing running browser", "port", o.Port)
		return false, nil
	}
	if o.ProfileDir != "" {
		abs, err := filepath.Abs(o.ProfileDir)
		if err != nil {
			return false, err
		}
		o.ProfileDir = abs
		if err := os.MkdirAll(abs, 0o750); err != nil {
			return false, fmt.Errorf("create profile dir: %w", err)
		}
	}
	argv := Command(o)
	cmd := exec.Command(argv[0], argv[1:]...)
	configureSysProcAttr(cmd)
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		cmd.Stdout = null
		cmd.Stderr = null
		defer func() { _ = null.Close() }()
	}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start %s: %w", argv[0], err)
	}
	logger.Info("debug browser started", "pid", cmd.Process.Pid, "port", o.Port, "binary", argv[0])
	return true, cmd.Process.Release()
}
