package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

func frame(uid uint64) types.DecodedFrame {
	return types.DecodedFrame{
		Width:    2,
		Height:   2,
		Channels: 1,
		Pix:      types.Buf[uint16]{1, 2, 3, 4},
		UniqueID: uid,
	}
}

func TestLatestWins(t *testing.T) {
	m := New()
	m.Publish(frame(1))
	m.Publish(frame(2))
	m.Publish(frame(3))

	got, ok := m.TryTake()
	require.True(t, ok)
	require.Equal(t, uint64(3), got.Frame.UniqueID)
	require.False(t, got.ReceivedAt.IsZero())

	stats := m.Stats()
	require.Equal(t, uint64(3), stats.Published)
	require.Equal(t, uint64(2), stats.Dropped)
	require.Equal(t, uint64(1), stats.Taken)
}

func TestTakeEmptiesSlot(t *testing.T) {
	m := New()

	_, ok := m.TryTake()
	require.False(t, ok)

	m.Publish(frame(1))
	_, ok = m.TryTake()
	require.True(t, ok)

	// Same frame must not be delivered twice.
	_, ok = m.TryTake()
	require.False(t, ok)
}

func TestConcurrentPublishTake(t *testing.T) {
	const n = 1000
	m := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= n; i++ {
			m.Publish(frame(i))
		}
	}()

	var last uint64
	for last != n {
		if got, ok := m.TryTake(); ok {
			// Frames may be dropped but never reordered.
			require.Greater(t, got.Frame.UniqueID, last)
			last = got.Frame.UniqueID
		}
	}
	wg.Wait()

	stats := m.Stats()
	require.Equal(t, uint64(n), stats.Published)
	require.Equal(t, stats.Published, stats.Taken+stats.Dropped)
}
