package geocode

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis_router/pkg/geo"
)

func TestCachedHitAndExpiry(t *testing.T) {
	next := &stubGeocoder{coord: mgRoad}
	c := NewCached(next, time.Minute, 0)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		got, err := c.Resolve(ctx, "MG Road")
		require.NoError(t, err)
		assert.Equal(t, mgRoad, got)
	}
	_, err := c.Resolve(ctx, "mg  road")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	now = now.Add(2 * time.Minute)
	_, err = c.Resolve(ctx, "MG Road")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedNegativeResults(t *testing.T) {
	ctx := context.Background()

	missing := &stubGeocoder{err: ErrNotFound}
	c := NewCached(missing, time.Minute, 0)
	for range 2 {
		_, err := c.Resolve(ctx, "Atlantis")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, missing.calls)

	down := &stubGeocoder{err: ErrUnavailable}
	c = NewCached(down, time.Minute, 0)
	for range 2 {
		_, err := c.Resolve(ctx, "Atlantis")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 2, down.calls)
	assert.Zero(t, c.Len())
}

type slowGeocoder struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowGeocoder) Resolve(context.Context, string) (geo.Coordinate, error) {
	s.calls.Add(1)
	<-s.release
	return mgRoad, nil
}

func TestCachedSharesConcurrentLookups(t *testing.T) {
	next := &slowGeocoder{release: make(chan struct{})}
	c := NewCached(next, time.Minute, 0)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Resolve(context.Background(), "MG Road")
			assert.NoError(t, err)
			assert.Equal(t, mgRoad, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	// Goroutines scheduled after the first call returned hit the cache instead.
	calls := next.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(8))
	_, err := c.Resolve(context.Background(), "MG Road")
	require.NoError(t, err)
	assert.Equal(t, calls, next.calls.Load())
}

func TestCachedSweepsExpiredEntries(t *testing.T) {
	missing := &stubGeocoder{err: ErrNotFound}
	c := NewCached(missing, time.Minute, 0)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }
	ctx := context.Background()

	for i := range 1000 {
		_, err := c.Resolve(ctx, "nowhere "+strconv.Itoa(i))
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1000, c.Len())

	now = now.Add(24 * time.Hour)
	_, err := c.Resolve(ctx, "one more")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, c.Len(), "expired names are swept on the next store")
}

func TestCachedIsBounded(t *testing.T) {
	next := &stubGeocoder{coord: mgRoad}
	c := NewCached(next, time.Hour, 3)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d"} {
		now = now.Add(time.Second)
		_, err := c.Resolve(ctx, name)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	// "a" expires first and was dropped; "d" is still cached.
	_, err := c.Resolve(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 4, next.calls)
	_, err = c.Resolve(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 5, next.calls)
}
