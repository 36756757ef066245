// Package model holds the domain types shared across the bridge: the unified
// download Item, Category, and the small enums both are built from. Field
// names and JSON tags mirror the qBittorrent WebUI v2 vocabulary wherever the
// two overlap, since internal/qbittorrent serializes Item values close to
// verbatim.
package model

import "time"

// ClientKind identifies which back-end engine owns an Item.
type ClientKind string

const (
	ClientAmule    ClientKind = "amule"
	ClientRTorrent ClientKind = "rtorrent"
)

// Status is the unified status vocabulary every back-end's native state is
// normalised into.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusSeeding     Status = "seeding"
	StatusError       Status = "error"
	StatusCompleted   Status = "completed"
	StatusQueued      Status = "queued"
	StatusChecking    Status = "checking"
	StatusOther       Status = "other"
)

// GapRange is a half-open byte range [Start, End) within a download that has
// not yet been received, decoded from the ED2K engine's gapStatus buffer.
type GapRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// ReqRange is a half-open byte range currently subject to a pending block
// request, decoded from the ED2K engine's reqStatus buffer.
type ReqRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// SegmentInfo carries the optional ED2K-only per-part buffers. Nil for BT items.
type SegmentInfo struct {
	// PartStatus is a per-part source count, one byte per 9,728,000-byte part.
	PartStatus []uint8    `json:"partStatus"`
	GapStatus  []GapRange `json:"gapStatus"`
	ReqStatus  []ReqRange `json:"reqStatus"`
}

// Item is the unified download/shared-file record merged by the unified data
// plane (C7) from either back-end.
type Item struct {
	Hash              string       `json:"hash"`
	Client            ClientKind   `json:"client"`
	Name              string       `json:"name"`
	Size              int64        `json:"size"`
	SizeDownloaded    int64        `json:"sizeDownloaded"`
	Progress          float64      `json:"progress"`
	DownloadSpeed     int64        `json:"downloadSpeed"`
	UploadSpeed       int64        `json:"uploadSpeed"`
	UploadSession     int64        `json:"uploadSession"`
	UploadTotal       int64        `json:"uploadTotal"`
	ETA               *int64       `json:"eta"`
	Status            Status       `json:"status"`
	Message           string       `json:"message,omitempty"`
	Category          string       `json:"category"`
	Tracker           string       `json:"tracker"`
	AddedAt           time.Time    `json:"addedAt"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
	Segments          *SegmentInfo `json:"segments,omitempty"`
	PathWarning       string       `json:"pathWarning,omitempty"`
	firstTrackerURL   string
}

// FirstTrackerURL is the raw tracker URL used to derive Tracker (the eTLD+1
// domain); kept around so re-resolution after a category/path change doesn't
// need another round trip to the owning client.
func (it *Item) FirstTrackerURL() string { return it.firstTrackerURL }

// SetFirstTrackerURL is used by client adapters while constructing an Item.
func (it *Item) SetFirstTrackerURL(u string) { it.firstTrackerURL = u }

// Normalize enforces the invariants spec.md §3/§8 require of every Item:
// sizeDownloaded <= size, progress == floor(100*sizeDownloaded/size), and
// status=seeding implies progress=100.
func (it *Item) Normalize() {
	if it.SizeDownloaded > it.Size {
		it.SizeDownloaded = it.Size
	}
	if it.Size > 0 {
		it.Progress = float64(100 * it.SizeDownloaded / it.Size)
	} else {
		it.Progress = 0
	}
	if it.Status == StatusSeeding {
		it.Progress = 100
		it.SizeDownloaded = it.Size
	}
	if it.Progress >= 100 && it.Size > 0 && it.SizeDownloaded >= it.Size && it.Status != StatusError {
		if it.Status != StatusSeeding {
			it.Status = StatusCompleted
		}
	}
}

// ComputeETA fills ETA from speed and remaining bytes per spec.md §4.7 step 5,
// when the owning back-end did not already supply one.
func (it *Item) ComputeETA() {
	if it.ETA != nil {
		return
	}
	if it.DownloadSpeed <= 0 {
		it.ETA = nil
		return
	}
	remaining := it.Size - it.SizeDownloaded
	if remaining < 0 {
		remaining = 0
	}
	eta := remaining / it.DownloadSpeed
	it.ETA = &eta
}
