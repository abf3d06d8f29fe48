package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestShutdownHandler(t *testing.T, terminal bool) (*ShutdownHandler, *bytes.Buffer, chan int) {
	t.Helper()

	stdout := &bytes.Buffer{}
	exitCodes := make(chan int, 1)

	h := NewShutdownHandler()
	h.tempDir = t.TempDir()
	h.stdout = stdout
	h.isTerminal = func() bool { return terminal }
	h.exit = func(code int) { exitCodes <- code }
	return h, stdout, exitCodes
}

func TestShutdownHandler_Cleanup(t *testing.T) {
	h, _, _ := newTestShutdownHandler(t, false)

	mustWrite := func(name string) {
		if err := os.WriteFile(filepath.Join(h.tempDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(TempPrefix + "segment.ts")
	mustWrite("unrelated.txt")
	mustWrite("crunchy-cli_without_dot")

	nested := filepath.Join(h.tempDir, TempPrefix+"dir", "inner")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "file"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if removed := h.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() removed %d entries, want 2", removed)
	}

	entries, err := os.ReadDir(h.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	if len(names) != 2 {
		t.Fatalf("remaining entries = %v, want unrelated.txt and crunchy-cli_without_dot", names)
	}
}

func TestShutdownHandler_CleanupMissingDir(t *testing.T) {
	h, _, _ := newTestShutdownHandler(t, false)
	h.tempDir = filepath.Join(h.tempDir, "missing")

	if removed := h.Cleanup(); removed != 0 {
		t.Errorf("Cleanup() on a missing directory removed %d entries", removed)
	}
}

func TestShutdownHandler_ShowCursor(t *testing.T) {
	t.Run("terminal", func(t *testing.T) {
		h, stdout, _ := newTestShutdownHandler(t, true)
		h.ShowCursor()
		if stdout.String() != "\x1b[?25h" {
			t.Errorf("ShowCursor() wrote %q", stdout.String())
		}
	})

	t.Run("not_a_terminal", func(t *testing.T) {
		h, stdout, _ := newTestShutdownHandler(t, false)
		h.ShowCursor()
		if stdout.Len() != 0 {
			t.Errorf("ShowCursor() wrote %q to a non-terminal", stdout.String())
		}
	})
}

func TestShutdownHandler_SignalTriggersShutdown(t *testing.T) {
	h, stdout, exitCodes := newTestShutdownHandler(t, true)
	leftover := filepath.Join(h.tempDir, TempPrefix+"leftover")
	if err := os.WriteFile(leftover, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	h.Install()
	defer h.Stop()
	h.signals <- os.Interrupt

	select {
	case code := <-exitCodes:
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not triggered")
	}

	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("temp file should have been removed")
	}
	if stdout.String() != "\x1b[?25h" {
		t.Errorf("cursor was not restored, stdout = %q", stdout.String())
	}
}

func TestShutdownHandler_StopIsIdempotent(t *testing.T) {
	h, _, exitCodes := newTestShutdownHandler(t, false)
	h.Install()
	h.Stop()
	h.Stop()

	select {
	case <-exitCodes:
		t.Fatal("stopped handler must not exit")
	case <-time.After(50 * time.Millisecond):
	}
}
