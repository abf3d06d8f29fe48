package utils

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"

	"crunchy-cli/internal"
)

// showCursor is the ANSI sequence that makes a hidden terminal cursor visible again
const showCursor = "\x1b[?25h"

// ShutdownHandler removes temporary artifacts and restores the terminal when the
// process is interrupted. It runs on its own goroutine and does not wait for
// in-flight work.
type ShutdownHandler struct {
	tempDir    string
	prefix     string
	stdout     io.Writer
	isTerminal func() bool
	exit       func(int)

	signals chan os.Signal
	done    chan struct{}
	once    sync.Once
}

// NewShutdownHandler creates a handler for the system temp directory
func NewShutdownHandler() *ShutdownHandler {
	return &ShutdownHandler{
		tempDir: os.TempDir(),
		prefix:  TempPrefix,
		stdout:  os.Stdout,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
		exit:    os.Exit,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// Install starts listening for SIGINT and SIGTERM
func (h *ShutdownHandler) Install() {
	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-h.signals:
			internal.LogDebug("Received %s, shutting down", sig)
			h.Shutdown()
		case <-h.done:
		}
	}()
}

// Stop detaches the handler from the signals
func (h *ShutdownHandler) Stop() {
	h.once.Do(func() {
		signal.Stop(h.signals)
		close(h.done)
	})
}

// Shutdown cleans up, restores the cursor and terminates the process with status 1
func (h *ShutdownHandler) Shutdown() {
	h.Cleanup()
	h.ShowCursor()
	h.exit(1)
}

// Cleanup removes every entry of the temp directory carrying the prefix.
// Failures are logged and skipped. It returns the number of removed entries.
func (h *ShutdownHandler) Cleanup() int {
	entries, err := os.ReadDir(h.tempDir)
	if err != nil {
		internal.LogDebug("Failed to read temp directory %s: %v", h.tempDir, err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), h.prefix) {
			continue
		}

		path := filepath.Join(h.tempDir, entry.Name())
		if entry.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}

		if err != nil {
			internal.LogDebug("Failed to remove temp file %s: %v", path, err)
			continue
		}
		internal.LogDebug("Removed temp file %s", path)
		removed++
	}
	return removed
}

// ShowCursor makes the cursor visible again if stdout is a terminal
func (h *ShutdownHandler) ShowCursor() {
	if !h.isTerminal() {
		return
	}
	_, _ = io.WriteString(h.stdout, showCursor)
}
