// Package btrpc is the adapter for the BitTorrent engine's line-oriented
// RPC. The wire protocol is a generic newline-delimited JSON request/reply
// stream over one long-lived net.Conn, not tied to any named BT daemon, so
// it gets the same hand-rolled bufio/net treatment the EC codec gets for
// its protocol: no ecosystem client exists for a protocol this specific.
// Calls are serialised at the wire level (one in-flight request at a time
// per connection) but bounded fan-in from callers is capped with a
// semaphore so a burst of Action calls doesn't pile up unboundedly.
package btrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/model"
)

// request is one line sent to the engine.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is one line received from the engine.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Torrent is the engine-native record, before status translation.
type Torrent struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	Size       int64   `json:"size"`
	Completed  int64   `json:"completed"`
	UploadedTotal int64 `json:"uploadedTotal"`
	DownRate   int64   `json:"downRate"`
	UpRate     int64   `json:"upRate"`
	Label      string  `json:"label"`
	State      string  `json:"state"` // active|paused|stopped|checking|hashing|errored
	HasPeers   bool    `json:"hasPeers"`
	Complete   bool    `json:"complete"`
	Tracker    string  `json:"tracker"`
	AddedAt    int64   `json:"addedAt"`
}

// Client is one stateful session to the BT engine.
type Client struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	nextID  uint64

	sem *semaphore.Weighted
}

// New constructs a Client that will dial addr on first use, admitting up to
// concurrency concurrent in-flight calls.
func New(addr string, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{addr: addr, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Dial establishes the session. Call once after construction, or rely on
// lazy dial from the first Call.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked(ctx)
}

func (c *Client) dialLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "btrpc.Dial", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close tears down the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// call sends method(params) and returns the raw result, serialised at the
// wire level under the client's internal lock and bounded by the semaphore.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return bridgeerr.New(bridgeerr.KindTimeout, "btrpc."+method, err)
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dialLocked(ctx); err != nil {
		return err
	}

	c.nextID++
	id := c.nextID

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return bridgeerr.New(bridgeerr.KindBadRequest, "btrpc."+method, err)
		}
		raw = b
	}

	req := request{ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindBadRequest, "btrpc."+method, err)
	}
	line = append(line, '\n')

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	if _, err := c.conn.Write(line); err != nil {
		c.conn = nil
		return bridgeerr.New(bridgeerr.KindTransport, "btrpc."+method, err)
	}

	for {
		respLine, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.conn = nil
			return bridgeerr.New(bridgeerr.KindTransport, "btrpc."+method, err)
		}
		var resp response
		if err := json.Unmarshal(respLine, &resp); err != nil {
			return bridgeerr.New(bridgeerr.KindProtocol, "btrpc."+method, err)
		}
		if resp.ID != id {
			// Stale/out-of-order reply; keep reading for ours.
			continue
		}
		if resp.Error != "" {
			return bridgeerr.New(bridgeerr.KindTransport, "btrpc."+method, fmt.Errorf("%s", resp.Error))
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return bridgeerr.New(bridgeerr.KindProtocol, "btrpc."+method, err)
			}
		}
		return nil
	}
}

// ListDownloads returns all non-seeding torrents.
func (c *Client) ListDownloads(ctx context.Context) ([]Torrent, error) {
	var out []Torrent
	err := c.call(ctx, "listDownloads", nil, &out)
	return out, err
}

// ListSeeding returns all completed/seeding torrents.
func (c *Client) ListSeeding(ctx context.Context) ([]Torrent, error) {
	var out []Torrent
	err := c.call(ctx, "listSeeding", nil, &out)
	return out, err
}

// AddByMagnet adds a torrent from a magnet URI into the given label.
func (c *Client) AddByMagnet(ctx context.Context, magnet, label string) error {
	return c.call(ctx, "addByMagnet", map[string]string{"magnet": magnet, "label": label}, nil)
}

// AddByTorrentFile adds a torrent from a raw .torrent body into the given label.
func (c *Client) AddByTorrentFile(ctx context.Context, body []byte, label string) error {
	return c.call(ctx, "addByTorrentFile", map[string]interface{}{"body": body, "label": label}, nil)
}

// Remove removes a torrent by hash, optionally deleting its data.
func (c *Client) Remove(ctx context.Context, hash string, deleteFiles bool) error {
	return c.call(ctx, "remove", map[string]interface{}{"hash": hash, "deleteFiles": deleteFiles}, nil)
}

// Pause pauses a torrent by hash.
func (c *Client) Pause(ctx context.Context, hash string) error {
	return c.call(ctx, "pause", map[string]string{"hash": hash}, nil)
}

// Resume resumes a torrent by hash.
func (c *Client) Resume(ctx context.Context, hash string) error {
	return c.call(ctx, "resume", map[string]string{"hash": hash}, nil)
}

// Stop stops a torrent by hash (distinct from pause in the engine's vocabulary).
func (c *Client) Stop(ctx context.Context, hash string) error {
	return c.call(ctx, "stop", map[string]string{"hash": hash}, nil)
}

// SetLabel assigns a torrent to a label (the engine's category equivalent).
func (c *Client) SetLabel(ctx context.Context, hash, label string) error {
	return c.call(ctx, "setLabel", map[string]string{"hash": hash, "label": label}, nil)
}

// ListLabels returns all known labels.
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	var out []string
	err := c.call(ctx, "listLabels", nil, &out)
	return out, err
}

// CreateLabel creates a new label.
func (c *Client) CreateLabel(ctx context.Context, label string) error {
	return c.call(ctx, "createLabel", map[string]string{"label": label}, nil)
}

// Ping performs a lightweight liveness probe, used by the health poll.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// ToItem normalises the engine's status vocabulary into the unified Status
// enum per the translation table: active+has-peers->downloading,
// active+complete->seeding, paused, stopped->paused, checking/hashing->checking,
// errored->error.
func (t Torrent) ToItem() *model.Item {
	it := &model.Item{
		Hash:           t.Hash,
		Client:         model.ClientRTorrent,
		Name:           t.Name,
		Size:           t.Size,
		SizeDownloaded: t.Completed,
		DownloadSpeed:  t.DownRate,
		UploadSpeed:    t.UpRate,
		UploadSession:  t.UploadedTotal,
		UploadTotal:    t.UploadedTotal,
		Category:       t.Label,
	}
	it.SetFirstTrackerURL(t.Tracker)
	switch t.State {
	case "active":
		if t.Complete {
			it.Status = model.StatusSeeding
		} else if t.HasPeers {
			it.Status = model.StatusDownloading
		} else {
			it.Status = model.StatusQueued
		}
	case "paused", "stopped":
		it.Status = model.StatusPaused
	case "checking", "hashing":
		it.Status = model.StatusChecking
	case "errored":
		it.Status = model.StatusError
	default:
		it.Status = model.StatusOther
	}
	if t.AddedAt > 0 {
		it.AddedAt = time.Unix(t.AddedAt, 0)
	}
	it.Normalize()
	return it
}
