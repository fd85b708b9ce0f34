package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogWritesWhenEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := EnableAt(path); err != nil {
		t.Fatalf("enable: %v", err)
	}
	defer Disable()

	Log("timeline", "notes=%d", 7)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "notes=7") {
		t.Fatalf("log missing message: %q", data)
	}
	if !strings.Contains(string(data), "timeline") {
		t.Fatalf("log missing category: %q", data)
	}
}

func TestLogSilentWhenDisabled(t *testing.T) {
	Disable()
	// must not panic with no file open
	Log("timeline", "dropped")
}
