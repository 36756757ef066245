// Package torrentfile parses uploaded .torrent bodies far enough to extract
// the info-hash and display name for dispatch to the BT engine; it never
// decodes piece data. Bencode decoding uses zeebo/bencode rather than the
// teacher's chihaya/bencode, which this module does not carry forward — see
// the grounding ledger for why.
package torrentfile

import (
	"crypto/sha1"

	"github.com/zeebo/bencode"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
)

// rawTorrent mirrors only the fields needed to compute an info-hash and
// display name; unknown fields are ignored by bencode.Unmarshal.
type rawTorrent struct {
	Info     bencode.RawMessage `bencode:"info"`
	Announce string             `bencode:"announce"`
}

type rawInfo struct {
	Name string `bencode:"name"`
}

// Parsed is the subset of a .torrent file the bridge cares about.
type Parsed struct {
	InfoHash string // 40-hex
	Name     string
	Announce string
	RawBody  []byte
}

// Parse decodes a .torrent file body and computes its 40-hex info-hash as
// the SHA-1 of the bencoded info dictionary, exactly as the BT wire format
// defines it.
func Parse(body []byte) (*Parsed, error) {
	var raw rawTorrent
	if err := bencode.DecodeBytes(body, &raw); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "torrentfile.Parse", err)
	}
	if len(raw.Info) == 0 {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "torrentfile.Parse", nil)
	}

	var info rawInfo
	if err := bencode.DecodeBytes(raw.Info, &info); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "torrentfile.Parse", err)
	}

	sum := sha1.Sum(raw.Info)
	return &Parsed{
		InfoHash: hexEncode(sum[:]),
		Name:     info.Name,
		Announce: raw.Announce,
		RawBody:  body,
	}, nil
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
