package resolver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetHostnameInvalidIPReturnsFalseWithoutLookup(t *testing.T) {
	var calls int32
	r, err := New(16, time.Minute, time.Minute, time.Second, WithLookupFunc(
		func(ctx context.Context, ip string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "host", nil
		}))
	require.NoError(t, err)

	_, ok := r.GetHostname("not-an-ip")
	require.False(t, ok)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestGetHostnameCachesSuccess(t *testing.T) {
	var calls int32
	r, err := New(16, time.Minute, time.Minute, time.Second, WithLookupFunc(
		func(ctx context.Context, ip string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "host.example.com", nil
		}))
	require.NoError(t, err)

	name, ok := r.GetHostname("1.2.3.4")
	require.True(t, ok)
	require.Equal(t, "host.example.com", name)

	name, ok = r.GetHostname("1.2.3.4")
	require.True(t, ok)
	require.Equal(t, "host.example.com", name)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetHostnameCachesFailure(t *testing.T) {
	var calls int32
	r, err := New(16, time.Minute, time.Hour, time.Second, WithLookupFunc(
		func(ctx context.Context, ip string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", context.DeadlineExceeded
		}))
	require.NoError(t, err)

	_, ok := r.GetHostname("5.6.7.8")
	require.False(t, ok)
	_, ok = r.GetHostname("5.6.7.8")
	require.False(t, ok)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEnrichPeers(t *testing.T) {
	r, err := New(16, time.Minute, time.Minute, time.Second, WithLookupFunc(
		func(ctx context.Context, ip string) (string, error) {
			return "resolved-" + ip, nil
		}))
	require.NoError(t, err)

	peers := []*Peer{{IP: "1.1.1.1"}, {IP: "2.2.2.2"}}
	r.EnrichPeers(peers)
	require.Equal(t, "resolved-1.1.1.1", peers[0].Hostname)
	require.Equal(t, "resolved-2.2.2.2", peers[1].Hostname)
}
