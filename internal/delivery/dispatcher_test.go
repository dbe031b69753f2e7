package delivery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsJobsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var inFlight, peak atomic.Int32

	tr := TransportFunc[string](func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return nil
	})
	d := NewDispatcher(NewSender(Config[string]{Name: "test", Transport: tr}), 3, time.Second)

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		ids[d.Submit(context.Background(), "msg")] = true
	}
	assert.Len(t, ids, 3, "job IDs must be unique")

	require.Eventually(t, func() bool { return inFlight.Load() == 3 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	d.Wait()

	assert.Equal(t, int32(3), peak.Load())
	out, ok := d.Last()
	require.True(t, ok)
	assert.True(t, out.Delivered)
	assert.True(t, ids[out.JobID])
}

func TestDispatcherLastEmpty(t *testing.T) {
	d := NewDispatcher(NewSender(Config[string]{Name: "test"}), 1, 0)
	_, ok := d.Last()
	assert.False(t, ok)
}
