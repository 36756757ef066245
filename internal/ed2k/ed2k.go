// Package ed2k is the ED2K engine's session adapter: it dials the engine's
// EC socket, frames requests/responses with internal/ec, and projects the
// resulting tagged value trees into unified model.Item values. Where
// internal/btrpc is the BT engine's session-plus-adapter, this package is
// its ED2K-side counterpart — the EC codec (C1) on its own has no notion of
// a live connection, so this is where that wire gets held open.
package ed2k

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/ec"
	"github.com/dlbridge/dlbridge/internal/hashstore"
	"github.com/dlbridge/dlbridge/internal/model"
)

// Tag IDs and command codes for the subset of the EC protocol this bridge
// drives. Real values are assigned by the aMule EC protocol header; these
// are placeholders with the same role, kept in one block so a real
// deployment only needs this file updated against the target engine.
const (
	cmdLogin         uint8 = 0x01
	cmdListDownloads uint8 = 0x20
	cmdListShared    uint8 = 0x21
	cmdAddLink       uint8 = 0x22
	cmdRemove        uint8 = 0x23
	cmdPause         uint8 = 0x24
	cmdResume        uint8 = 0x25
	cmdSyncCats      uint8 = 0x26
	cmdSetCategory   uint8 = 0x27
	cmdPing          uint8 = 0x2f

	tagPassword uint8 = 0x01
	tagLink     uint8 = 0x02
	tagHash     uint8 = 0x03
	tagCatID    uint8 = 0x04
	tagName     uint8 = 0x05
	tagSize     uint8 = 0x06
	tagSizeDone uint8 = 0x07
	tagSpeed    uint8 = 0x08
	tagUpSpeed  uint8 = 0x09
	tagCatName  uint8 = 0x0a
	tagCatPath  uint8 = 0x0b
	tagStatus   uint8 = 0x0c
	tagPartStat uint8 = 0x0d
	tagGapStat  uint8 = 0x0e
	tagReqStat  uint8 = 0x0f
)

// Session dials and frames the ED2K engine's EC connection.
type Session struct {
	addr     string
	password string
	codec    *ec.Codec
	hashes   *hashstore.Store

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// New builds a Session; hashes is C3, used to translate between native
// ED2K hashes and the synthesised 40-hex hash this bridge presents.
func New(addr, password string, hashes *hashstore.Store) *Session {
	return &Session{addr: addr, password: password, codec: ec.New(), hashes: hashes}
}

// Dial implements clientmgr.Session: connect and log in.
func (s *Session) Dial(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "ed2k.Dial", err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)

	_, err = s.roundTripLocked(ctx, cmdLogin, []*ec.Tag{
		{ID: tagPassword, Type: ec.TypeString, Str: s.password},
	})
	if err != nil {
		conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// HealthCheck implements clientmgr.Session.
func (s *Session) HealthCheck(ctx context.Context) error {
	_, err := s.roundTrip(ctx, cmdPing, nil)
	return err
}

// Close implements clientmgr.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) roundTrip(ctx context.Context, cmd uint8, tags []*ec.Tag) (*ec.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundTripLocked(ctx, cmd, tags)
}

// roundTripLocked writes a length-prefixed EC frame and reads the
// length-prefixed reply, matching the aMule EC wire framing of a uint32
// big-endian length header preceding the opaque frame body.
func (s *Session) roundTripLocked(ctx context.Context, cmd uint8, tags []*ec.Tag) (*ec.Frame, error) {
	if s.conn == nil {
		return nil, bridgeerr.New(bridgeerr.KindNotConnected, "ed2k.roundTrip", nil)
	}
	buf, err := s.codec.Encode(cmd, tags)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ed2k.roundTrip", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetDeadline(deadline)
	} else {
		s.conn.SetDeadline(time.Now().Add(10 * time.Second))
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := s.conn.Write(lenPrefix[:]); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "ed2k.roundTrip", err)
	}
	if _, err := s.conn.Write(buf); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "ed2k.roundTrip", err)
	}

	if _, err := io.ReadFull(s.reader, lenPrefix[:]); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "ed2k.roundTrip", err)
	}
	replyLen := binary.BigEndian.Uint32(lenPrefix[:])
	reply := make([]byte, replyLen)
	if _, err := io.ReadFull(s.reader, reply); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "ed2k.roundTrip", err)
	}

	frame, err := s.codec.Decode(reply)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindProtocol, "ed2k.roundTrip", err)
	}
	return frame, nil
}

// Client implements unified.Source / category.Mirror / qbittorrent.Ed2kDispatcher.
func (s *Session) Client() model.ClientKind { return model.ClientAmule }

// Snapshot implements unified.Source: listDownloads + listShared, each
// projected through HashStore to produce the unified 40-hex hash.
func (s *Session) Snapshot(ctx context.Context) ([]*model.Item, error) {
	var items []*model.Item
	for _, cmd := range []uint8{cmdListDownloads, cmdListShared} {
		frame, err := s.roundTrip(ctx, cmd, nil)
		if err != nil {
			return nil, err
		}
		for _, tag := range frame.Tags {
			items = append(items, s.toItem(tag))
		}
	}
	return items, nil
}

func (s *Session) toItem(tag *ec.Tag) *model.Item {
	var ed2kHash, name string
	var size, sizeDone, speed, upSpeed uint64
	var catID uint64
	var status string
	var partStatus, gapStatus, reqStatus []byte

	for _, child := range tag.Children {
		switch child.ID {
		case tagHash:
			ed2kHash = fmt.Sprintf("%x", child.Raw)
		case tagName:
			name = child.Str
		case tagSize:
			size = child.Uint
		case tagSizeDone:
			sizeDone = child.Uint
		case tagSpeed:
			speed = child.Uint
		case tagUpSpeed:
			upSpeed = child.Uint
		case tagCatID:
			catID = child.Uint
		case tagStatus:
			status = child.Str
		case tagPartStat:
			partStatus = child.Raw
		case tagGapStat:
			gapStatus = child.Raw
		case tagReqStat:
			reqStatus = child.Raw
		}
	}

	magnetHash, _ := s.hashes.SetMapping(ed2kHash, "", hashstore.Meta{Name: name})

	it := &model.Item{
		Hash:           magnetHash,
		Client:         model.ClientAmule,
		Name:           name,
		Size:           int64(size),
		SizeDownloaded: int64(sizeDone),
		DownloadSpeed:  int64(speed),
		UploadSpeed:    int64(upSpeed),
		// Category carries the engine's raw numeric id; unified.Plane
		// resolves it to the unified category name during merge.
		Category: fmt.Sprintf("%d", catID),
	}
	it.Status = translateStatus(status)
	if len(partStatus) > 0 || len(gapStatus) > 0 || len(reqStatus) > 0 {
		it.Segments = ec.DecodeSegments(partStatus, gapStatus, reqStatus)
	}
	it.Normalize()
	return it
}

func translateStatus(raw string) model.Status {
	switch raw {
	case "downloading":
		return model.StatusDownloading
	case "paused":
		return model.StatusPaused
	case "complete", "seeding":
		return model.StatusSeeding
	case "error":
		return model.StatusError
	case "checking", "allocating":
		return model.StatusChecking
	case "queued":
		return model.StatusQueued
	default:
		return model.StatusOther
	}
}

// hashTag builds a TypeHash tag from a 32-hex (or shorter, for tests) ED2K
// hash string: encodeTag writes a TypeHash node's Raw bytes as-is, so the
// hex text has to be decoded to its 16-byte wire form first.
func hashTag(ed2kHash string) *ec.Tag {
	raw, err := hex.DecodeString(ed2kHash)
	if err != nil {
		raw = []byte(ed2kHash)
	}
	return &ec.Tag{ID: tagHash, Type: ec.TypeHash, Raw: raw}
}

// AddEd2kLink implements qbittorrent.Ed2kDispatcher.
func (s *Session) AddEd2kLink(link string, categoryID int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.roundTrip(ctx, cmdAddLink, []*ec.Tag{
		{ID: tagLink, Type: ec.TypeString, Str: link},
		{ID: tagCatID, Type: ec.TypeUint32, Uint: uint64(categoryID)},
	})
	return err
}

// Remove implements qbittorrent.Ed2kDispatcher.
func (s *Session) Remove(ed2kHash string, deleteFiles bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.roundTrip(ctx, cmdRemove, []*ec.Tag{hashTag(ed2kHash)})
	return err
}

// Pause implements qbittorrent.Ed2kDispatcher.
func (s *Session) Pause(ed2kHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.roundTrip(ctx, cmdPause, []*ec.Tag{hashTag(ed2kHash)})
	return err
}

// Resume implements qbittorrent.Ed2kDispatcher.
func (s *Session) Resume(ed2kHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.roundTrip(ctx, cmdResume, []*ec.Tag{hashTag(ed2kHash)})
	return err
}

// SetCategory reassigns a single item's category by its ED2K-mirror
// numeric id, used by the WebSocket file-category-change action.
func (s *Session) SetCategory(ed2kHash string, categoryID int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.roundTrip(ctx, cmdSetCategory, []*ec.Tag{
		hashTag(ed2kHash),
		{ID: tagCatID, Type: ec.TypeUint32, Uint: uint64(categoryID)},
	})
	return err
}

// SyncCategories implements category.Mirror: pushes the full category set
// to the engine as its numeric-id world.
func (s *Session) SyncCategories(cats []model.Category) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tags := make([]*ec.Tag, 0, len(cats))
	for i, cat := range cats {
		tags = append(tags, &ec.Tag{
			ID:   tagCatID,
			Type: ec.TypeUint32,
			Uint: uint64(i),
			Children: []*ec.Tag{
				{ID: tagCatName, Type: ec.TypeString, Str: cat.Name},
				{ID: tagCatPath, Type: ec.TypeString, Str: cat.PathMappings.EffectivePath(model.ClientAmule, cat.Path)},
			},
		})
	}
	_, err := s.roundTrip(ctx, cmdSyncCats, tags)
	return err
}
