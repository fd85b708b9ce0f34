// Package debug writes diagnostic messages to a file. It stays silent until
// enabled, so degraded-path logging costs nothing in normal runs.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool
)

// Enable starts debug logging to ~/.config/otaroll/debug.log
func Enable() error {
	homeDir, _ := os.UserHomeDir()
	return EnableAt(filepath.Join(homeDir, ".config", "otaroll", "debug.log"))
}

// EnableAt starts debug logging to an explicit path.
func EnableAt(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	os.MkdirAll(filepath.Dir(path), 0755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true

	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(file, "[%s] %-10s %s\n", ts, "debug", "=== Debug logging started ===")
	file.Sync()

	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || file == nil {
		return
	}

	ts := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(file, "[%s] %-10s %s\n", ts, category, msg)
	file.Sync() // flush immediately so we see logs even on crash
}
