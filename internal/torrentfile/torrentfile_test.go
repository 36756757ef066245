package torrentfile

import (
	"testing"

	"github.com/zeebo/bencode"
	"github.com/stretchr/testify/require"
)

func buildTestTorrent(t *testing.T) []byte {
	t.Helper()
	info := map[string]interface{}{
		"name":         "File.iso",
		"piece length": 262144,
		"pieces":       "0123456789012345678901234567890123456789",
		"length":       1048576,
	}
	infoBytes, err := bencode.EncodeBytes(info)
	require.NoError(t, err)

	full := map[string]interface{}{
		"announce": "http://tracker.example.com/announce",
		"info":     bencode.RawMessage(infoBytes),
	}
	body, err := bencode.EncodeBytes(full)
	require.NoError(t, err)
	return body
}

func TestParseExtractsNameAndHash(t *testing.T) {
	body := buildTestTorrent(t)
	parsed, err := Parse(body)
	require.NoError(t, err)
	require.Equal(t, "File.iso", parsed.Name)
	require.Len(t, parsed.InfoHash, 40)
	require.Equal(t, "http://tracker.example.com/announce", parsed.Announce)
}

func TestParseRejectsMissingInfo(t *testing.T) {
	body, err := bencode.EncodeBytes(map[string]interface{}{"announce": "x"})
	require.NoError(t, err)
	_, err = Parse(body)
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not bencode"))
	require.Error(t, err)
}
