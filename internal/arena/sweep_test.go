package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRestoreKeepsIdentity(t *testing.T) {
	var a particleArena
	handles := make([]Handle, 0, 6)
	for i := 0; i < 6; i++ {
		handles = append(handles, a.Insert(particle{Pos: float64(i)}))
	}
	genBefore := a.Generation()

	// Drop odd positions, restore evens with a nudge.
	removed := 0
	s := NewSweep(&a)
	for {
		_, v, ok := s.Next()
		if !ok {
			break
		}
		if int(v.Pos)%2 == 1 {
			removed++
			continue
		}
		v.Pos += 0.5
		s.Restore(v)
	}
	s.Close()

	assert.Equal(t, 3, removed)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, genBefore+uint32(removed), a.Generation())

	for i := range handles {
		v, ok := a.Get(&handles[i])
		if i%2 == 1 {
			assert.False(t, ok, "swept object %d must be gone", i)
			r := Remote(handles[i].SyncID)
			_, ok = a.Get(&r)
			assert.False(t, ok, "swept sync id %d must be unregistered", i)
			continue
		}
		require.True(t, ok, "restored object %d must keep its slot, generation and id", i)
		assert.Equal(t, float64(i)+0.5, v.Pos)
	}
}

func TestSweepCloseFinalizesPendingRemoval(t *testing.T) {
	var a particleArena
	h := a.Insert(particle{Tag: "doomed"})
	a.Insert(particle{Tag: "unvisited"})

	s := NewSweep(&a)
	_, v, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "doomed", v.Tag)
	s.Close()

	assert.Equal(t, 1, a.Len())
	_, ok = a.Get(&h)
	assert.False(t, ok)

	// The finalized slot is back on the free list.
	reused := a.Insert(particle{Tag: "recycled"})
	assert.Equal(t, h.index, reused.index)
}

func TestSweepRepeatedRestoreReplacesValue(t *testing.T) {
	var a particleArena
	h := a.Insert(particle{Pos: 1})

	s := NewSweep(&a)
	_, v, ok := s.Next()
	require.True(t, ok)
	v.Pos = 2
	s.Restore(v)
	v.Pos = 3
	s.Restore(v)
	s.Close()

	require.Equal(t, 1, a.Len())
	got, ok := a.Get(&h)
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Pos)
}

func TestSweepEmptyArena(t *testing.T) {
	var a particleArena
	s := NewSweep(&a)
	_, _, ok := s.Next()
	assert.False(t, ok)
	s.Close()
	assert.Equal(t, 0, a.Len())
}

func TestSweepExtractedObjectInvisibleUntilRestored(t *testing.T) {
	var a particleArena
	h := a.Insert(particle{Tag: "x"})

	s := NewSweep(&a)
	_, v, ok := s.Next()
	require.True(t, ok)

	_, visible := a.Get(&h)
	assert.False(t, visible, "an extracted object reads as absent")
	assert.Equal(t, 0, a.Len())

	s.Restore(v)
	s.Close()
	_, visible = a.Get(&h)
	assert.True(t, visible)
}

func TestSweepRestoreBeforeNextIsNoOp(t *testing.T) {
	var empty particleArena
	s := NewSweep(&empty)
	s.Restore(particle{Pos: 9})
	assert.Equal(t, 0, empty.Len())
	s.Close()

	var a particleArena
	h := a.Insert(particle{Pos: 1, Tag: "keep"})
	s = NewSweep(&a)
	s.Restore(particle{Pos: 9, Tag: "clobber"})

	v, ok := a.Get(&h)
	require.True(t, ok)
	assert.Equal(t, particle{Pos: 1, Tag: "keep"}, *v)

	// The sweep still walks normally afterwards.
	sh, got, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, h.SyncID, sh.SyncID)
	assert.Equal(t, particle{Pos: 1, Tag: "keep"}, got)
	s.Restore(got)
	s.Close()
	assert.Equal(t, 1, a.Len())
}
