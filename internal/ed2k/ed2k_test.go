package ed2k

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/ec"
	"github.com/dlbridge/dlbridge/internal/hashstore"
	"github.com/dlbridge/dlbridge/internal/model"
)

// pipeSession builds a Session whose conn is one end of an in-memory pipe,
// with a fake engine goroutine serving the other end, avoiding a real
// socket dial for unit tests.
func pipeSession(t *testing.T, serve func(codec *ec.Codec, cmd uint8, tags []*ec.Tag) (uint8, []*ec.Tag)) *Session {
	t.Helper()
	client, engine := net.Pipe()
	t.Cleanup(func() { client.Close(); engine.Close() })

	hashes, err := hashstore.Open(t.TempDir() + "/hashes.json")
	require.NoError(t, err)

	s := &Session{codec: ec.New(), hashes: hashes, conn: client, reader: bufio.NewReader(client)}

	go func() {
		codec := ec.New()
		r := bufio.NewReader(engine)
		for {
			var lenPrefix [4]byte
			if _, err := readFull(r, lenPrefix[:]); err != nil {
				return
			}
			n := binary.BigEndian.Uint32(lenPrefix[:])
			body := make([]byte, n)
			if _, err := readFull(r, body); err != nil {
				return
			}
			frame, err := codec.Decode(body)
			if err != nil {
				return
			}
			replyCmd, replyTags := serve(codec, frame.Cmd, frame.Tags)
			out, err := codec.Encode(replyCmd, replyTags)
			if err != nil {
				return
			}
			var outLen [4]byte
			binary.BigEndian.PutUint32(outLen[:], uint32(len(out)))
			engine.Write(outLen[:])
			engine.Write(out)
		}
	}()

	return s
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSnapshotProjectsTagsIntoItems(t *testing.T) {
	s := pipeSession(t, func(codec *ec.Codec, cmd uint8, tags []*ec.Tag) (uint8, []*ec.Tag) {
		switch cmd {
		case cmdListDownloads:
			return cmd, []*ec.Tag{
				{ID: 0, Children: []*ec.Tag{
					{ID: tagHash, Type: ec.TypeHash, Raw: []byte("0123456789abcdef")},
					{ID: tagName, Type: ec.TypeString, Str: "some.file"},
					{ID: tagSize, Type: ec.TypeUint64, Uint: 1000},
					{ID: tagSizeDone, Type: ec.TypeUint64, Uint: 400},
					{ID: tagStatus, Type: ec.TypeString, Str: "downloading"},
				}},
			}
		default:
			return cmd, nil
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	items, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "some.file", items[0].Name)
	require.Equal(t, int64(1000), items[0].Size)
	require.Equal(t, int64(400), items[0].SizeDownloaded)
	require.Equal(t, model.StatusDownloading, items[0].Status)
	require.Equal(t, model.ClientAmule, items[0].Client)
}

func TestTranslateStatusCoversVocabulary(t *testing.T) {
	cases := map[string]model.Status{
		"downloading": model.StatusDownloading,
		"paused":      model.StatusPaused,
		"complete":    model.StatusSeeding,
		"seeding":     model.StatusSeeding,
		"error":       model.StatusError,
		"checking":    model.StatusChecking,
		"queued":      model.StatusQueued,
		"unknown-xyz": model.StatusOther,
	}
	for raw, want := range cases {
		require.Equal(t, want, translateStatus(raw), raw)
	}
}

func TestPauseSendsHashTag(t *testing.T) {
	var gotTags []*ec.Tag
	s := pipeSession(t, func(codec *ec.Codec, cmd uint8, tags []*ec.Tag) (uint8, []*ec.Tag) {
		gotTags = tags
		return cmd, nil
	})

	err := s.Pause("deadbeef")
	require.NoError(t, err)
	require.Len(t, gotTags, 1)
	require.Equal(t, tagHash, gotTags[0].ID)
	require.Equal(t, ec.TypeHash, gotTags[0].Type)
}
