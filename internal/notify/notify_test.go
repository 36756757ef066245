package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitDisabledEventTypeIsNoop(t *testing.T) {
	d := New(Config{Enabled: map[EventType]bool{EventDownloadAdded: false}})
	defer d.Close()
	d.Emit(Event{Type: EventDownloadAdded})
	// No assertion beyond "doesn't panic/block"; disabled events never enqueue.
}

func TestDispatchScriptInvokedWithEnv(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	script := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\necho \"$EVENT_TYPE:$EVENT_HASH\" > \""+marker+"\"\n"),
		0o755))

	d := New(Config{ScriptPath: script, ScriptTimeout: 5 * time.Second})
	d.Emit(Event{Type: EventDownloadFinished, Hash: "abc123"})
	d.Close()

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Contains(t, string(data), "downloadFinished:abc123")
}
