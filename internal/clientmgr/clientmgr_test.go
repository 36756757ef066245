package clientmgr

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
)

type fakeSession struct {
	dialErr   error
	dialCalls int32
}

func (f *fakeSession) Dial(ctx context.Context) error {
	atomic.AddInt32(&f.dialCalls, 1)
	return f.dialErr
}
func (f *fakeSession) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeSession) Close() error                          { return nil }

func TestCallFailsFastWhenNotConnected(t *testing.T) {
	m := New("test", &fakeSession{})
	err := m.Call(func() error { return nil })
	require.Error(t, err)
	require.Equal(t, bridgeerr.KindNotConnected, bridgeerr.KindOf(err))
}

func TestOnConnectFiresExactlyOnceOnTransition(t *testing.T) {
	m := New("test", &fakeSession{})
	var fires int32
	m.OnConnect(func(ctx context.Context) { atomic.AddInt32(&fires, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Enable(ctx)

	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fires) == 1
	}, time.Second, 5*time.Millisecond)

	m.Disable()
}

func TestStateStringValues(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "disconnected", StateDisconnected.String())
}
