// Package hashstore maintains the bidirectional, persistent mapping between
// native ED2K hashes and the synthetic 40-hex BitTorrent-style info-hashes
// used to impersonate BT downloads to *arr tooling. Persistence follows the
// write-then-atomic-rename pattern the teacher's redis/mysql store packages
// delegate to their backing engines; here there is no engine, so the
// package does the fsync/rename itself.
package hashstore

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
)

// Meta is the sidecar metadata kept alongside each mapping.
type Meta struct {
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	AddedAt   time.Time `json:"addedAt"`
}

type entry struct {
	Ed2k   string `json:"ed2k"`
	Magnet string `json:"magnet"`
	Meta   Meta   `json:"meta"`
}

// Store is a persistent, fsync-durable ed2k<->magnet hash map. A fresh store
// is created transparently if the backing file does not exist; a missing
// file is not an error. Reads take an internal RWMutex read lock; writes
// serialise under the write lock and persist the whole table on each
// mutation, matching the teacher's AddTorrent/AddPeer call-and-persist shape
// without needing a real database.
type Store struct {
	mu   sync.RWMutex
	path string

	byEd2k   map[string]*entry
	byMagnet map[string]*entry
}

// Open loads path if present, or starts an empty store backed by path.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		byEd2k:   make(map[string]*entry),
		byMagnet: make(map[string]*entry),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, bridgeerr.New(bridgeerr.KindTransport, "hashstore.Open", err)
	}
	var entries []*entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindProtocol, "hashstore.Open", err)
	}
	for _, e := range entries {
		s.byEd2k[e.Ed2k] = e
		s.byMagnet[e.Magnet] = e
	}
	return s, nil
}

// SynthesizeMagnetHash derives a deterministic 40-hex hash from an ED2K hash
// and a file name. The transform is a SHA-1 of the ED2K hash bytes and the
// name's byte length, truncated to 20 bytes (already SHA-1's width) and
// hex-encoded; it need not be cryptographically meaningful, only injective
// over the inserts this store actually sees, which SetMapping enforces
// by refusing a collision against a different ed2k hash.
func SynthesizeMagnetHash(ed2kHash string, nameLen int) string {
	h := sha1.New()
	h.Write([]byte(ed2kHash))
	h.Write([]byte{byte(nameLen), byte(nameLen >> 8), byte(nameLen >> 16), byte(nameLen >> 24)})
	return hex.EncodeToString(h.Sum(nil))
}

// SetMapping inserts or replaces the mapping for ed2kHash, synthesising a
// magnet hash if magnetHash is empty. Returns the magnet hash used. A
// collision (the synthesised hash is already bound to a different ed2k
// hash) is refused with KindConflict rather than silently overwritten.
func (s *Store) SetMapping(ed2kHash, magnetHash string, meta Meta) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if magnetHash == "" {
		magnetHash = SynthesizeMagnetHash(ed2kHash, len(meta.Name))
	}
	if existing, ok := s.byMagnet[magnetHash]; ok && existing.Ed2k != ed2kHash {
		return "", bridgeerr.New(bridgeerr.KindConflict, "hashstore.SetMapping",
			errors.Errorf("magnet hash %s already bound to a different ed2k hash", magnetHash))
	}

	e := &entry{Ed2k: ed2kHash, Magnet: magnetHash, Meta: meta}
	if meta.AddedAt.IsZero() {
		e.Meta.AddedAt = time.Now()
	}
	s.byEd2k[ed2kHash] = e
	s.byMagnet[magnetHash] = e

	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return magnetHash, nil
}

// GetMagnetHash returns the synthetic hash bound to ed2kHash, or "" if none.
func (s *Store) GetMagnetHash(ed2kHash string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byEd2k[ed2kHash]; ok {
		return e.Magnet
	}
	return ""
}

// GetEd2kHash returns the native hash bound to magnetHash, or "" if none.
func (s *Store) GetEd2kHash(magnetHash string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byMagnet[magnetHash]; ok {
		return e.Ed2k
	}
	return ""
}

// GetMeta returns the sidecar metadata for ed2kHash, if known.
func (s *Store) GetMeta(ed2kHash string) (Meta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byEd2k[ed2kHash]; ok {
		return e.Meta, true
	}
	return Meta{}, false
}

// RemoveMapping deletes the mapping for ed2kHash, if any.
func (s *Store) RemoveMapping(ed2kHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byEd2k[ed2kHash]
	if !ok {
		return nil
	}
	delete(s.byEd2k, ed2kHash)
	delete(s.byMagnet, e.Magnet)
	return s.persistLocked()
}

// persistLocked writes the full table to a temp file, fsyncs it, then
// atomically renames it over s.path, so a crash mid-write never corrupts
// the existing mapping.
func (s *Store) persistLocked() error {
	entries := make([]*entry, 0, len(s.byEd2k))
	for _, e := range s.byEd2k {
		entries = append(entries, e)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindProtocol, "hashstore.persist", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "hashstore.persist", err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d", s.path, time.Now().UnixNano())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "hashstore.persist", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return bridgeerr.New(bridgeerr.KindTransport, "hashstore.persist", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return bridgeerr.New(bridgeerr.KindTransport, "hashstore.persist", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return bridgeerr.New(bridgeerr.KindTransport, "hashstore.persist", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return bridgeerr.New(bridgeerr.KindTransport, "hashstore.persist", err)
	}
	return nil
}
