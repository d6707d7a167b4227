package rt

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHandshakePublishReadAcknowledge(t *testing.T) {
	h := NewHandshake[int]()
	require.True(t, h.IsIdle())

	require.True(t, h.Publish(42))
	require.False(t, h.Publish(7), "publishing while already published is a usage error")

	v, peeked := h.Peek()
	require.True(t, peeked)
	require.Equal(t, 42, v)

	read, ok := h.Read()
	require.True(t, ok)
	require.Equal(t, 42, read)

	_, ok = h.Read()
	require.False(t, ok, "a second read with nothing new published fails")

	require.True(t, h.Acknowledged())
	require.True(t, h.IsIdle())
	require.True(t, h.Publish(99))
}

func TestDoubleBufferSwapAndCopyForward(t *testing.T) {
	db := NewDoubleBuffer[int](nil)

	require.True(t, db.WriterCanModify())
	*db.Write() = 1
	db.WriterUpdate(true)

	require.False(t, db.WriterCanModify(), "writer awaits swap after publishing a mutation")

	require.Equal(t, 0, *db.Read(), "reader hasn't accepted yet")
	db.ReaderAcceptLatest()
	require.Equal(t, 1, *db.Read())

	db.WriterUpdate(false)
	require.True(t, db.WriterCanModify())
	require.Equal(t, 1, *db.Write(), "writer's new slot is copy-forwarded from the reader's view")

	*db.Write() = 2
	db.WriterUpdate(true)
	db.ReaderAcceptLatest()
	require.Equal(t, 2, *db.Read())
}

func TestDoubleBufferCustomSwapHook(t *testing.T) {
	calls := 0
	db := NewDoubleBuffer[[]int](func(writeTo, readFrom *[]int) {
		calls++
		*writeTo = append((*writeTo)[:0], *readFrom...)
	})

	*db.Write() = []int{1, 2, 3}
	db.WriterUpdate(true)
	db.ReaderAcceptLatest()
	db.WriterUpdate(false)

	require.Equal(t, 1, calls)
	require.Equal(t, []int{1, 2, 3}, *db.Write())
}

func TestRingDropsNewestWhenFull(t *testing.T) {
	r := NewRing[int](2)
	require.True(t, r.Push(1))
	require.True(t, r.Push(2))
	require.False(t, r.Push(3))
	require.Equal(t, uint64(1), r.Dropped())

	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	all := r.DrainAll()
	require.Equal(t, []int{2}, all)

	_, ok = r.Pop()
	require.False(t, ok)
}
