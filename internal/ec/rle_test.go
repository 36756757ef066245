package ec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteRLERoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{1, 2, 3},
		{5, 5, 5, 5, 5},
		{0, 0, 0, 1, 1, 1, 1, 1, 1, 2},
		{9},
		{7, 7},
		genRun(200),
		genRun(400),
	}
	for _, c := range cases {
		encoded := encodeByteRLE(c)
		decoded := decodeByteRLE(encoded)
		require.Equal(t, c, decoded)
	}
}

func TestByteRLEIncompleteTerminalPair(t *testing.T) {
	// [3, 3] with no trailing run length is two literal bytes, not a run.
	require.Equal(t, []byte{3, 3}, decodeByteRLE([]byte{3, 3}))
}

func TestByteRLEDistinctTerminalPair(t *testing.T) {
	require.Equal(t, []byte{4, 9}, decodeByteRLE([]byte{4, 9}))
}

func TestUint64RLERoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1<<32 + 7, 9_728_000, ^uint64(0)}
	encoded := encodeUint64RLE(values)
	decoded := decodeUint64RLE(encoded)
	require.Equal(t, values, decoded)
}

func TestDecodeSegments(t *testing.T) {
	partStatus := encodeByteRLE([]byte{1, 1, 1, 2})
	gapValues := encodeUint64RLE([]uint64{0, PartSize, 2 * PartSize, 3 * PartSize})
	reqValues := encodeUint64RLE([]uint64{10, 20})

	si := DecodeSegments(partStatus, gapValues, reqValues)
	require.Equal(t, []uint8{1, 1, 1, 2}, si.PartStatus)
	require.Len(t, si.GapStatus, 2)
	require.Equal(t, uint64(0), si.GapStatus[0].Start)
	require.Equal(t, uint64(PartSize), si.GapStatus[0].End)
	require.Len(t, si.ReqStatus, 1)
	require.Equal(t, uint64(10), si.ReqStatus[0].Start)
	require.Equal(t, uint64(20), si.ReqStatus[0].End)
}

func genRun(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 42
	}
	return out
}
