package btrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

// fakeEngine serves one btrpc connection: respond maps a method name to the
// raw JSON result it should reply with for every call of that method.
func fakeEngine(t *testing.T, respond map[string]string) *Client {
	t.Helper()
	clientConn, engineConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); engineConn.Close() })

	go func() {
		r := bufio.NewReader(engineConn)
		for {
			line, err := r.ReadBytes('\n')
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			result := respond[req.Method]
			resp := response{ID: req.ID, Result: json.RawMessage(result)}
			out, _ := json.Marshal(resp)
			out = append(out, '\n')
			engineConn.Write(out)
		}
	}()

	return &Client{conn: clientConn, reader: bufio.NewReader(clientConn), sem: semaphore.NewWeighted(1)}
}

func TestAdapterSnapshotMergesDownloadsAndSeeding(t *testing.T) {
	c := fakeEngine(t, map[string]string{
		"listDownloads": `[{"hash":"h1","name":"a","size":100,"completed":50,"state":"active","hasPeers":true}]`,
		"listSeeding":   `[{"hash":"h2","name":"b","size":200,"completed":200,"state":"active","complete":true}]`,
	})
	a := NewAdapter(c)

	items, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "h1", items[0].Hash)
	require.Equal(t, "h2", items[1].Hash)
}

func TestAdapterClientReportsRTorrent(t *testing.T) {
	a := NewAdapter(New("", 1))
	require.Equal(t, "rtorrent", string(a.Client()))
}
