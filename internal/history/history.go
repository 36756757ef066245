// Package history maintains the append-only record of observed items,
// independent of backend. The storage backend is pluggable via a
// driver-registration pattern — AddDriver mirrors the teacher's
// store.AddTorrentDriver/AddPeerDriver so a MySQL-backed implementation can
// register itself from an init() in internal/history/mysql without this
// package importing database/sql directly.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/model"
)

// Backend is implemented by each storage driver.
type Backend interface {
	Load() (map[string]*model.HistoryRecord, error)
	Save(records map[string]*model.HistoryRecord) error
	Close() error
}

// Driver constructs a Backend from an opaque, driver-specific config value.
type Driver interface {
	Open(cfg interface{}) (Backend, error)
}

var (
	driversMu sync.Mutex
	drivers   = make(map[string]Driver)
)

// AddDriver registers a named history storage driver. Called from driver
// packages' init(), the same pattern the teacher uses for store backends.
func AddDriver(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// Open constructs a Backend using the named registered driver.
func Open(name string, cfg interface{}) (Backend, error) {
	driversMu.Lock()
	d, ok := drivers[name]
	driversMu.Unlock()
	if !ok {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "history.Open", nil)
	}
	return d.Open(cfg)
}

// Recorder drives the upsert-on-tick state machine over a Backend.
type Recorder struct {
	backend Backend

	mu      sync.Mutex
	records map[string]*model.HistoryRecord
}

// NewRecorder loads existing records from backend (if any) and returns a
// ready Recorder.
func NewRecorder(backend Backend) (*Recorder, error) {
	records, err := backend.Load()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = make(map[string]*model.HistoryRecord)
	}
	return &Recorder{backend: backend, records: records}, nil
}

// Observe upserts a history record per live item: addedAt on insert,
// downloaded/uploaded/ratio updated always, completedAt set the first time
// progress reaches 100.
func (r *Recorder) Observe(items []*model.Item) error {
	r.mu.Lock()
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		seen[it.Hash] = true
		rec, exists := r.records[it.Hash]
		if !exists {
			rec = &model.HistoryRecord{
				Hash:    it.Hash,
				AddedAt: it.AddedAt,
				Client:  it.Client,
			}
			if rec.AddedAt.IsZero() {
				rec.AddedAt = time.Now()
			}
			r.records[it.Hash] = rec
		}
		rec.Name = it.Name
		rec.Size = it.Size
		rec.Downloaded = it.SizeDownloaded
		rec.Uploaded = it.UploadTotal
		rec.TrackerDomain = it.Tracker
		rec.RecomputeRatio()

		switch {
		case rec.Status == model.HistoryCompleted:
			// Completion is terminal: the record stays completed.
		case it.Status == model.StatusError:
			rec.Status = model.HistoryError
		case it.Progress >= 100:
			rec.Status = model.HistoryCompleted
			if rec.CompletedAt == nil {
				now := time.Now()
				rec.CompletedAt = &now
			}
		default:
			rec.Status = model.HistoryDownloading
		}
	}

	// Anything no longer in the live set with no terminal completion is
	// marked missing, not deleted; deletion is an explicit user action.
	for hash, rec := range r.records {
		if seen[hash] {
			continue
		}
		if rec.Status != model.HistoryCompleted {
			rec.Status = model.HistoryMissing
		}
	}

	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	return r.backend.Save(snapshot)
}

func (r *Recorder) snapshotLocked() map[string]*model.HistoryRecord {
	out := make(map[string]*model.HistoryRecord, len(r.records))
	for k, v := range r.records {
		cp := *v
		out[k] = &cp
	}
	return out
}

// List returns all records.
func (r *Recorder) List() []*model.HistoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.HistoryRecord, 0, len(r.records))
	for _, v := range r.records {
		out = append(out, v)
	}
	return out
}

// Delete removes a record by hash; deletion of a live item is the caller's
// responsibility to also stop tracking it as live before the next Observe.
func (r *Recorder) Delete(hash string) error {
	r.mu.Lock()
	delete(r.records, hash)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	return r.backend.Save(snapshot)
}

// jsonBackend is the default file-based Backend: JSON file in the data
// directory, atomic write via temp-then-rename.
type jsonBackend struct {
	path string
	mu   sync.Mutex
}

// NewJSONBackend builds the default JSON-file-backed Backend.
func NewJSONBackend(path string) Backend {
	return &jsonBackend{path: path}
}

func (b *jsonBackend) Load() (map[string]*model.HistoryRecord, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bridgeerr.New(bridgeerr.KindTransport, "history.jsonBackend.Load", err)
	}
	var records map[string]*model.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindProtocol, "history.jsonBackend.Load", err)
	}
	return records, nil
}

func (b *jsonBackend) Save(records map[string]*model.HistoryRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindProtocol, "history.jsonBackend.Save", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "history.jsonBackend.Save", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "history.jsonBackend.Save", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "history.jsonBackend.Save", err)
	}
	return nil
}

func (b *jsonBackend) Close() error { return nil }
