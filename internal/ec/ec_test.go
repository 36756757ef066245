package ec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New()
	tags := []*Tag{
		{ID: 1, Type: TypeUint32, Uint: 42},
		{ID: 2, Type: TypeString, Str: "Movies"},
		{
			ID:   3,
			Type: TypeUint8,
			Uint: 7,
			Children: []*Tag{
				{ID: 4, Type: TypeUint64, Uint: 123456789},
			},
		},
	}
	buf, err := c.Encode(0x10, tags)
	require.NoError(t, err)

	frame, err := c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x10), frame.Cmd)
	require.Len(t, frame.Tags, 3)
	require.Equal(t, uint64(42), frame.Tags[0].Uint)
	require.Equal(t, "Movies", frame.Tags[1].Str)
	require.Len(t, frame.Tags[2].Children, 1)
	require.Equal(t, uint64(123456789), frame.Tags[2].Children[0].Uint)
}

func TestDecodeTooShort(t *testing.T) {
	c := New()
	_, err := c.Decode([]byte{0x01})
	require.Error(t, err)
}

func TestDecodeUnknownTypeSkipsNode(t *testing.T) {
	c := New()
	tags := []*Tag{
		{ID: 9, Type: TagType(0x7f), Raw: []byte{1, 2, 3}},
	}
	buf, err := c.Encode(0x01, tags)
	require.NoError(t, err)

	frame, err := c.Decode(buf)
	require.NoError(t, err)
	require.Len(t, frame.Tags, 1)
	require.Equal(t, []byte{1, 2, 3}, frame.Tags[0].Raw)
}
