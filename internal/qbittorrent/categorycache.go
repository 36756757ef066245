// Package qbittorrent re-exposes the unified plane over the qBittorrent
// WebUI v2 HTTP surface, the shape Edholm-qbit-service's qbit.go consumes
// as a client of (GetStalledDownloads, GetTrackerInfo, ForceReannounce);
// here the bridge plays the server role instead.
package qbittorrent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dlbridge/dlbridge/internal/model"
)

// safetyDeadline bounds how long a caller can be made to wait for the
// first category sync before the barrier opens anyway.
const safetyDeadline = 60 * time.Second

// CategorySource supplies the categories to cache; normally category.Manager.
type CategorySource interface {
	List() []model.Category
}

// CategoryCache holds the qBittorrent-shaped view of categories
// (name -> {name, savePath}) behind a first-init barrier: the first caller
// that needs categories blocks on initDone until a sync completes or the
// safety deadline fires, whichever comes first. Concurrent syncs are
// single-flighted so two simultaneous callers never race a torn read.
type CategoryCache struct {
	source CategorySource

	mu          sync.RWMutex
	cache       map[string]CategoryInfo
	initialized bool
	initOnce    sync.Once
	initDone    chan struct{}

	group singleflight.Group
}

// CategoryInfo is the qBittorrent wire shape for one category.
type CategoryInfo struct {
	Name     string `json:"name"`
	SavePath string `json:"savePath"`
}

// NewCategoryCache builds a cache that starts uninitialised; call Sync to
// populate it and StartSafetyTimer once at startup.
func NewCategoryCache(source CategorySource) *CategoryCache {
	return &CategoryCache{
		source:   source,
		cache:    make(map[string]CategoryInfo),
		initDone: make(chan struct{}),
	}
}

// StartSafetyTimer arms the 60s deadline that resolves the init barrier
// even if the ED2K engine never connects. Call exactly once at startup.
func (c *CategoryCache) StartSafetyTimer() {
	go func() {
		select {
		case <-time.After(safetyDeadline):
			c.resolveInit()
		case <-c.initDone:
		}
	}()
}

func (c *CategoryCache) resolveInit() {
	c.initOnce.Do(func() { close(c.initDone) })
}

// Sync replaces the cache atomically from source.List(). Concurrent callers
// share one in-flight sync via singleflight.
func (c *CategoryCache) Sync(ctx context.Context) error {
	_, err, _ := c.group.Do("sync", func() (interface{}, error) {
		cats := c.source.List()
		next := make(map[string]CategoryInfo, len(cats))
		for _, cat := range cats {
			next[cat.Name] = CategoryInfo{Name: cat.Name, SavePath: cat.Path}
		}
		c.mu.Lock()
		c.cache = next
		c.initialized = true
		c.mu.Unlock()
		c.resolveInit()
		return nil, nil
	})
	return err
}

// AwaitInit blocks until the first sync completes or the safety deadline
// fires, whichever happens first, then returns the current snapshot.
func (c *CategoryCache) AwaitInit(ctx context.Context) map[string]CategoryInfo {
	select {
	case <-c.initDone:
	case <-ctx.Done():
	}
	return c.Snapshot()
}

// Snapshot returns the current cache contents without waiting on init.
func (c *CategoryCache) Snapshot() map[string]CategoryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]CategoryInfo, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}
