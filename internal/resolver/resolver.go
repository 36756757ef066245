// Package resolver caches reverse-DNS hostname lookups for peer enrichment.
// It layers a bounded LRU (hashicorp/golang-lru/v2) with dual success/failure
// TTLs and single-flight lookup coalescing (golang.org/x/sync/singleflight),
// the same coalesce-concurrent-callers shape the bridge also uses for
// category sync and the qBittorrent cache's first-init barrier.
package resolver

import (
	"context"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	hostname string
	ok       bool
	expires  time.Time
}

// Resolver is a cache of IP->hostname lookups. Safe for concurrent use.
type Resolver struct {
	cache         *lru.Cache[string, cacheEntry]
	ttl           time.Duration
	failedTTL     time.Duration
	lookupTimeout time.Duration
	group         singleflight.Group
	lookupHost    func(ctx context.Context, ip string) (string, error)

	mu sync.Mutex
}

// Option configures a Resolver at construction.
type Option func(*Resolver)

// WithLookupFunc overrides the underlying reverse-lookup function; used by
// tests to avoid exercising real DNS.
func WithLookupFunc(fn func(ctx context.Context, ip string) (string, error)) Option {
	return func(r *Resolver) { r.lookupHost = fn }
}

// New builds a Resolver with the given cache capacity and TTLs.
func New(maxSize int, ttl, failedTTL, lookupTimeout time.Duration, opts ...Option) (*Resolver, error) {
	c, err := lru.New[string, cacheEntry](maxSize)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		cache:         c,
		ttl:           ttl,
		failedTTL:     failedTTL,
		lookupTimeout: lookupTimeout,
	}
	r.lookupHost = defaultLookupHost
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func defaultLookupHost(ctx context.Context, ip string) (string, error) {
	var resolver net.Resolver
	names, err := resolver.LookupAddr(ctx, ip)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", net.InvalidAddrError(ip)
	}
	return names[0], nil
}

// GetHostname returns the cached or freshly resolved hostname for ip, or
// ("", false) if ip does not parse, the entry is a cached failure, or the
// lookup itself fails. A malformed ip never schedules a lookup.
func (r *Resolver) GetHostname(ip string) (string, bool) {
	if net.ParseIP(ip) == nil {
		return "", false
	}

	r.mu.Lock()
	entry, found := r.cache.Get(ip)
	r.mu.Unlock()
	if found && time.Now().Before(entry.expires) {
		return entry.hostname, entry.ok
	}

	v, _, _ := r.group.Do(ip, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.lookupTimeout)
		defer cancel()
		name, err := r.lookupHost(ctx, ip)

		e := cacheEntry{}
		if err != nil {
			e.ok = false
			e.expires = time.Now().Add(r.failedTTL)
		} else {
			e.hostname = name
			e.ok = true
			e.expires = time.Now().Add(r.ttl)
		}
		r.mu.Lock()
		r.cache.Add(ip, e)
		r.mu.Unlock()
		return e, nil
	})

	e := v.(cacheEntry)
	return e.hostname, e.ok
}

// Peer is the minimal shape resolver enriches; callers pass their own peer
// type through EnrichPeers via the accessor/setter closures.
type Peer struct {
	IP       string
	Hostname string
}

// EnrichPeers resolves hostnames for every peer in place, skipping peers
// whose IP is unresolvable without blocking on each other (lookups for
// distinct IPs proceed concurrently via goroutines fanning into the
// single-flight group; duplicate IPs across peers are coalesced for free).
func (r *Resolver) EnrichPeers(peers []*Peer) {
	var wg sync.WaitGroup
	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if name, ok := r.GetHostname(p.IP); ok {
				p.Hostname = name
			}
		}()
	}
	wg.Wait()
}
