package btrpc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/model"
)

func TestToItemStatusTranslation(t *testing.T) {
	cases := []struct {
		state    string
		complete bool
		hasPeers bool
		want     model.Status
	}{
		{"active", true, false, model.StatusSeeding},
		{"active", false, true, model.StatusDownloading},
		{"active", false, false, model.StatusQueued},
		{"paused", false, false, model.StatusPaused},
		{"stopped", false, false, model.StatusPaused},
		{"checking", false, false, model.StatusChecking},
		{"hashing", false, false, model.StatusChecking},
		{"errored", false, false, model.StatusError},
	}
	for _, c := range cases {
		tor := Torrent{Hash: "h", Size: 100, Completed: 50, State: c.state, Complete: c.complete, HasPeers: c.hasPeers}
		it := tor.ToItem()
		require.Equal(t, c.want, it.Status, "state=%s complete=%v hasPeers=%v", c.state, c.complete, c.hasPeers)
	}
}

func TestToItemNormalizesSeedingProgress(t *testing.T) {
	tor := Torrent{Hash: "h", Size: 100, Completed: 50, State: "active", Complete: true}
	it := tor.ToItem()
	require.Equal(t, float64(100), it.Progress)
	require.Equal(t, int64(100), it.SizeDownloaded)
}
