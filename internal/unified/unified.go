// Package unified merges per-back-end item records into the single model
// the rest of the bridge consumes: the qBittorrent adapter's torrents/info,
// the WebSocket broadcaster, and the history recorder. It is the one plane
// both back-ends flow through, the way the teacher's Tracker centralises
// swarm state that both the HTTP API and the announce handler read from.
package unified

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/dlbridge/dlbridge/internal/model"
)

// Source is implemented by each back-end adapter to supply its current
// item set to the merge step.
type Source interface {
	Client() model.ClientKind
	// Snapshot returns the current live items for this back-end. Returning
	// an error means this source contributes nothing this tick, not that
	// the whole merge fails.
	Snapshot(ctx context.Context) ([]*model.Item, error)
}

// CategoryResolver resolves a back-end's native category representation —
// a numeric id for the ED2K engine, a bare label for the BT engine — back
// to C6's unified category name. Implemented by *category.Manager.
type CategoryResolver interface {
	ResolveEd2kID(id int) string
	ResolveLabel(label string) string
}

// Plane holds the latest merged snapshot and notifies subscribers after
// every merge.
type Plane struct {
	sources    []Source
	categories CategoryResolver

	mu       sync.RWMutex
	items    map[string]*model.Item // by hash

	subMu sync.Mutex
	subs  []chan struct{}

	emitInterval time.Duration
}

// New builds a Plane over the given sources, emitting merged snapshots on
// the given cadence once Run is started. categories may be nil, in which
// case each source's raw Category value passes through unresolved.
func New(sources []Source, categories CategoryResolver, emitInterval time.Duration) *Plane {
	if emitInterval <= 0 {
		emitInterval = 2 * time.Second
	}
	return &Plane{
		sources:      sources,
		categories:   categories,
		items:        make(map[string]*model.Item),
		emitInterval: emitInterval,
	}
}

// Subscribe returns a channel that receives a signal after each merge tick.
func (p *Plane) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	p.subMu.Lock()
	p.subs = append(p.subs, ch)
	p.subMu.Unlock()
	return ch
}

func (p *Plane) notifySubscribers() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Run drives the merge loop until ctx is cancelled.
func (p *Plane) Run(ctx context.Context) {
	ticker := time.NewTicker(p.emitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mergeOnce(ctx)
		}
	}
}

// mergeOnce performs one merge cycle per the merge contract: query each
// connected source, resolve its native category to the unified name,
// normalise, apply tracker-domain extraction and ETA fill-in, then publish
// atomically and notify subscribers.
func (p *Plane) mergeOnce(ctx context.Context) {
	merged := make(map[string]*model.Item)
	for _, src := range p.sources {
		items, err := src.Snapshot(ctx)
		if err != nil {
			continue
		}
		client := src.Client()
		for _, it := range items {
			it.Category = p.resolveCategory(client, it.Category)
			it.Tracker = trackerDomain(it.FirstTrackerURL())
			it.ComputeETA()
			it.Normalize()
			merged[it.Hash] = it
		}
	}

	p.mu.Lock()
	p.items = merged
	p.mu.Unlock()

	p.notifySubscribers()
}

// resolveCategory looks up a source's raw category value in C6's mirror
// tables; an unresolved value falls back to Default. With no resolver
// wired, the raw value passes through unchanged.
func (p *Plane) resolveCategory(client model.ClientKind, raw string) string {
	if p.categories == nil {
		return raw
	}
	switch client {
	case model.ClientAmule:
		id, err := strconv.Atoi(raw)
		if err != nil {
			return model.DefaultCategoryName
		}
		return p.categories.ResolveEd2kID(id)
	case model.ClientRTorrent:
		return p.categories.ResolveLabel(raw)
	default:
		return model.DefaultCategoryName
	}
}

// Items returns a snapshot slice of the current merged view.
func (p *Plane) Items() []*model.Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*model.Item, 0, len(p.items))
	for _, it := range p.items {
		out = append(out, it)
	}
	return out
}

// ItemsByCategory filters Items() to a single category name; empty string
// returns everything.
func (p *Plane) ItemsByCategory(category string) []*model.Item {
	if category == "" {
		return p.Items()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*model.Item
	for _, it := range p.items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// Get returns a single item by hash.
func (p *Plane) Get(hash string) (*model.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	it, ok := p.items[hash]
	return it, ok
}

// trackerDomain reduces a raw tracker URL to its registrable eTLD+1 domain
// using the public suffix list, falling back to the bare host (or the raw
// string) when the list can't derive one — e.g. a raw IP tracker address.
func trackerDomain(raw string) string {
	if raw == "" {
		return ""
	}
	host := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		host = raw[idx+3:]
	}
	if idx := strings.IndexAny(host, "/:"); idx >= 0 {
		host = host[:idx]
	}
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
