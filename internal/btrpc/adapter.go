package btrpc

import (
	"context"
	"time"

	"github.com/dlbridge/dlbridge/internal/model"
)

// Adapter glues the raw Client onto clientmgr.Session, unified.Source,
// category.Mirror, and qbittorrent.BTDispatcher, the BT-side counterpart of
// internal/ed2k.Session: Client only exposes the RPC surface, this type
// gives it the four interface shapes the rest of the bridge dials against.
type Adapter struct {
	client *Client
}

// NewAdapter wraps an existing Client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Dial implements clientmgr.Session.
func (a *Adapter) Dial(ctx context.Context) error { return a.client.Dial(ctx) }

// HealthCheck implements clientmgr.Session.
func (a *Adapter) HealthCheck(ctx context.Context) error { return a.client.Ping(ctx) }

// Close implements clientmgr.Session.
func (a *Adapter) Close() error { return a.client.Close() }

// Client implements unified.Source / category.Mirror / qbittorrent.BTDispatcher.
func (a *Adapter) Client() model.ClientKind { return model.ClientRTorrent }

// Snapshot implements unified.Source.
func (a *Adapter) Snapshot(ctx context.Context) ([]*model.Item, error) {
	downloads, err := a.client.ListDownloads(ctx)
	if err != nil {
		return nil, err
	}
	seeding, err := a.client.ListSeeding(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*model.Item, 0, len(downloads)+len(seeding))
	for _, t := range downloads {
		items = append(items, t.ToItem())
	}
	for _, t := range seeding {
		items = append(items, t.ToItem())
	}
	return items, nil
}

// SyncCategories implements category.Mirror: the BT engine only knows bare
// labels, so this mirrors just the name, matching spec.md's "label" mapping.
func (a *Adapter) SyncCategories(cats []model.Category) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	existing, err := a.client.ListLabels(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[l] = true
	}
	for _, cat := range cats {
		if have[cat.Name] {
			continue
		}
		if err := a.client.CreateLabel(ctx, cat.Name); err != nil {
			return err
		}
	}
	return nil
}

// SetLabel reassigns a single torrent's label, used by the WebSocket
// file-category-change action.
func (a *Adapter) SetLabel(hash, label string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.SetLabel(ctx, hash, label)
}

// AddMagnet implements qbittorrent.BTDispatcher.
func (a *Adapter) AddMagnet(magnet, label string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.AddByMagnet(ctx, magnet, label)
}

// AddTorrentFile implements qbittorrent.BTDispatcher.
func (a *Adapter) AddTorrentFile(body []byte, label string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.AddByTorrentFile(ctx, body, label)
}

// Remove implements qbittorrent.BTDispatcher.
func (a *Adapter) Remove(hash string, deleteFiles bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.Remove(ctx, hash, deleteFiles)
}

// Pause implements qbittorrent.BTDispatcher.
func (a *Adapter) Pause(hash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.Pause(ctx, hash)
}

// Resume implements qbittorrent.BTDispatcher.
func (a *Adapter) Resume(hash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.Resume(ctx, hash)
}
