package store

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdatePlacesReadingsByCount(t *testing.T) {
	s := New()
	require.True(t, s.Update(7, 2, []uint16{10, 11, 12}))
	require.False(t, s.Update(7, 0, []uint16{1, 2, 3}))

	require.Equal(t, 1, s.Sample(7, 0))
	require.Equal(t, 3, s.Sample(7, 2))
	require.Equal(t, Unknown, s.Sample(7, 3), "gap between reports stays unknown")
	require.Equal(t, 10, s.Sample(7, 6))
	require.Equal(t, 12, s.Sample(7, 8))
	require.Equal(t, Unknown, s.Sample(7, 9))
	require.Equal(t, Unknown, s.Sample(7, -1))
	require.Equal(t, Unknown, s.Sample(8, 0))

	require.Equal(t, 8, s.MaxX(7))
	require.Equal(t, 12, s.Latest(7))
	require.Equal(t, Unknown, s.MaxX(99))
	require.Equal(t, Unknown, s.Latest(99))
}

func TestIDsInFirstSeenOrder(t *testing.T) {
	s := New()
	s.Update(5, 0, []uint16{1})
	s.Update(2, 0, []uint16{1})
	s.Update(5, 1, []uint16{1})
	s.Update(9, 0, []uint16{1})
	require.Equal(t, []uint16{5, 2, 9}, s.IDs())
	require.Equal(t, 3, s.Len())

	ids := s.IDs()
	ids[0] = 100
	require.Equal(t, uint16(5), s.IDs()[0], "IDs must return a copy")

	s.Clear()
	require.Empty(t, s.IDs())
	require.Equal(t, Unknown, s.Sample(5, 0))
}

func TestStats(t *testing.T) {
	s := New()
	mean, sd := s.Stats(1, 0)
	require.Zero(t, mean)
	require.Zero(t, sd)

	s.Update(1, 0, []uint16{2, 4, 4, 4})
	s.Update(1, 1, []uint16{5, 5, 7, 9})
	mean, sd = s.Stats(1, 0)
	require.InDelta(t, 5.0, mean, 1e-9)
	require.InDelta(t, math.Sqrt(32.0/7.0), sd, 1e-9)

	mean, sd = s.Stats(1, 2)
	require.InDelta(t, 8.0, mean, 1e-9)
	require.InDelta(t, math.Sqrt2, sd, 1e-9)

	s.Update(2, 3, []uint16{42})
	mean, sd = s.Stats(2, 10)
	require.Equal(t, 42.0, mean)
	require.Zero(t, sd)
}

func TestConcurrentUpdates(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for id := uint16(1); id <= 8; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := uint16(0); c < 50; c++ {
				s.Update(id, c, []uint16{c, c})
				_ = s.Latest(id)
			}
		}()
	}
	wg.Wait()
	require.Len(t, s.IDs(), 8)
	for _, id := range s.IDs() {
		require.Equal(t, 99, s.MaxX(id))
		require.Equal(t, 49, s.Latest(id))
	}
}
