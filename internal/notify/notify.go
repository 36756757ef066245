// Package notify drives the two fire-and-forget outbound event paths: an
// Apprise CLI invocation and a user-provided script, both spawned with a
// kill deadline and never awaited by the caller that triggered the event.
// The worker-queue-plus-timeout shape is the same bounded-background-work
// pattern the broadcaster uses for per-subscriber writes, just for process
// spawns instead of socket writes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"syscall"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType is one of the fixed notification categories.
type EventType string

const (
	EventDownloadAdded   EventType = "downloadAdded"
	EventDownloadFinished EventType = "downloadFinished"
	EventCategoryChanged EventType = "categoryChanged"
	EventFileMoved       EventType = "fileMoved"
	EventFileDeleted     EventType = "fileDeleted"
)

// Event is the full payload handed to the script on stdin and used to
// populate its environment/argv.
type Event struct {
	Type       EventType `json:"type"`
	Hash       string    `json:"hash"`
	FileName   string    `json:"fileName"`
	ClientType string    `json:"clientType"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Config selects which paths are enabled and their options.
type Config struct {
	AppriseBinary string
	AppriseTargets []string // e.g. "mailto://...", passed as trailing arguments
	ScriptPath    string
	ScriptTimeout time.Duration
	Enabled       map[EventType]bool
}

// Dispatcher runs the two notification paths on a bounded worker queue so a
// burst of events never spawns unbounded concurrent processes.
type Dispatcher struct {
	cfg   Config
	queue chan Event
	wg    sync.WaitGroup
}

const queueDepth = 256

// New builds a Dispatcher and starts its worker goroutine.
func New(cfg Config) *Dispatcher {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = 30 * time.Second
	}
	d := &Dispatcher{cfg: cfg, queue: make(chan Event, queueDepth)}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Emit enqueues ev for dispatch without blocking the caller. If the queue is
// full the event is dropped and logged — never blocks the snapshot loop
// that triggered it.
func (d *Dispatcher) Emit(ev Event) {
	if d.cfg.Enabled != nil && !d.cfg.Enabled[ev.Type] {
		return
	}
	select {
	case d.queue <- ev:
	default:
		log.WithField("event", ev.Type).Warn("notify: queue full, dropping event")
	}
}

// Close stops accepting new events and waits for the worker to drain.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.dispatchApprise(ev)
		d.dispatchScript(ev)
	}
}

func (d *Dispatcher) dispatchApprise(ev Event) {
	if d.cfg.AppriseBinary == "" || len(d.cfg.AppriseTargets) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ScriptTimeout)
	defer cancel()

	args := append([]string{"-t", string(ev.Type), "-b", ev.FileName}, d.cfg.AppriseTargets...)
	cmd := exec.CommandContext(ctx, d.cfg.AppriseBinary, args...)
	if err := runWithKillTimeout(ctx, cmd); err != nil {
		log.WithFields(log.Fields{"event": ev.Type, "err": err}).Warn("notify: apprise invocation failed")
	}
}

func (d *Dispatcher) dispatchScript(ev Event) {
	if d.cfg.ScriptPath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ScriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.cfg.ScriptPath, string(ev.Type))
	cmd.Env = append(cmd.Env,
		"EVENT_TYPE="+string(ev.Type),
		"EVENT_HASH="+ev.Hash,
		"EVENT_FILENAME="+ev.FileName,
		"EVENT_CLIENT_TYPE="+ev.ClientType,
	)
	payload, err := json.Marshal(ev)
	if err == nil {
		cmd.Stdin = bytes.NewReader(payload)
	}
	if err := runWithKillTimeout(ctx, cmd); err != nil {
		log.WithFields(log.Fields{"event": ev.Type, "err": err}).Warn("notify: event script failed")
	}
}

// runWithKillTimeout starts cmd and, on ctx expiry, sends SIGTERM first and
// escalates to SIGKILL if the process hasn't exited within the WaitDelay
// grace period.
func runWithKillTimeout(ctx context.Context, cmd *exec.Cmd) error {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 2 * time.Second
	return cmd.Run()
}
