package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T, resource, feature, unit string, ts time.Time) BucketKey {
	t.Helper()
	r, err := NewResourceID(resource, 0)
	require.NoError(t, err)
	f, err := NewAppFeature(feature, 0)
	require.NoError(t, err)
	u, err := NewUsageUnit(unit, 0)
	require.NoError(t, err)
	b, err := NewTimeBucket(ts, time.Minute)
	require.NoError(t, err)
	return NewBucketKey(r, f, u, b)
}

func TestBucketKey(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("equal components produce equal keys", func(t *testing.T) {
		a := newTestKey(t, "blob-storage", "search", "bytes", t0.Add(5*time.Second))
		b := newTestKey(t, "blob-storage", "search", "bytes", t0.Add(55*time.Second))

		assert.Equal(t, a, b)
		assert.Equal(t, 0, a.Compare(b))
		assert.Equal(t, t0, a.BucketStart())
	})

	t.Run("orders by bucket start before identifiers", func(t *testing.T) {
		early := newTestKey(t, "z", "z", "z", t0)
		late := newTestKey(t, "a", "a", "a", t0.Add(time.Minute))

		assert.True(t, early.Less(late))
		assert.False(t, late.Less(early))
	})

	t.Run("orders by resource, feature then unit within a bucket", func(t *testing.T) {
		keys := []BucketKey{
			newTestKey(t, "a", "a", "a", t0),
			newTestKey(t, "a", "a", "b", t0),
			newTestKey(t, "a", "b", "a", t0),
			newTestKey(t, "b", "a", "a", t0),
		}
		for i := 1; i < len(keys); i++ {
			assert.True(t, keys[i-1].Less(keys[i]), "key %d should sort before key %d", i-1, i)
		}
	})

	t.Run("exposes its components", func(t *testing.T) {
		k := newTestKey(t, "blob-storage", "search", "bytes", t0)

		assert.Equal(t, "blob-storage", k.Resource())
		assert.Equal(t, "search", k.Feature())
		assert.Equal(t, "bytes", k.Unit())
	})
}
