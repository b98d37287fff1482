package reliability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplayWindowRejectsDuplicates(t *testing.T) {
	w := NewReplayWindow(4)
	require.True(t, w.Check(1))
	w.Update(1)
	require.False(t, w.Check(1))
	require.True(t, w.Check(2))
	w.Update(2)
}

func TestReplayWindowRejectsStale(t *testing.T) {
	w := NewReplayWindow(4)
	for seq := uint32(1); seq <= 10; seq++ {
		require.True(t, w.Check(seq))
		w.Update(seq)
	}
	require.False(t, w.Check(5)) // 10-4=6 cutoff, 5 is stale
	require.True(t, w.Check(11)) // above the cutoff and never seen
}

func TestReplayWindowAllowsReordering(t *testing.T) {
	w := NewReplayWindow(8)
	w.Update(5)
	require.True(t, w.Check(3))
	w.Update(3)
	require.False(t, w.Check(3))
}

func TestRetransmitBufferStoreAndGet(t *testing.T) {
	b := NewRetransmitBuffer(2)
	b.Store(1, []byte("a"))
	b.Store(2, []byte("b"))
	raw, ok := b.Get(1)
	require.True(t, ok)
	require.Equal(t, []byte("a"), raw)
}

func TestRetransmitBufferEvictsOldest(t *testing.T) {
	b := NewRetransmitBuffer(2)
	b.Store(1, []byte("a"))
	b.Store(2, []byte("b"))
	b.Store(3, []byte("c"))
	_, ok := b.Get(1)
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = b.Get(2)
	require.True(t, ok)
	_, ok = b.Get(3)
	require.True(t, ok)
}

func TestRetransmitBufferAckPrunes(t *testing.T) {
	b := NewRetransmitBuffer(8)
	b.Store(1, []byte("a"))
	b.Store(2, []byte("b"))
	b.Store(3, []byte("c"))
	b.Ack(2)
	_, ok := b.Get(1)
	require.False(t, ok)
	_, ok = b.Get(2)
	require.False(t, ok)
	_, ok = b.Get(3)
	require.True(t, ok)
}
