package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer() (*Normalizer, *SizeCache, uint64) {
	sizes := NewSizeCache(nil)
	task := sizes.Begin()
	return NewNormalizer(sizes), sizes, task
}

func TestNormalizeFragments(t *testing.T) {
	n, _, task := newTestNormalizer()

	snap, ok := n.Normalize(task, KindMain, Event{
		DownloadedBytes: 50_000,
		FragmentIndex:   10,
		FragmentCount:   40,
	})
	require.True(t, ok)
	assert.True(t, snap.HasFraction)
	assert.InDelta(t, 0.25, snap.Fraction, 1e-9)
	assert.True(t, snap.TotalEstimated)
	assert.Equal(t, int64(200_000), snap.Total)
}

func TestNormalizeFragmentsWithoutEstimate(t *testing.T) {
	n, _, task := newTestNormalizer()

	// Too little progress to extrapolate a total
	snap, ok := n.Normalize(task, KindMain, Event{
		DownloadedBytes: 100_000,
		FragmentIndex:   1,
		FragmentCount:   1000,
	})
	require.True(t, ok)
	assert.True(t, snap.HasFraction)
	assert.False(t, snap.TotalEstimated)
	assert.Zero(t, snap.Total)

	// Too few bytes
	snap, ok = n.Normalize(task, KindMain, Event{
		DownloadedBytes: 512,
		FragmentIndex:   5,
		FragmentCount:   10,
	})
	require.True(t, ok)
	assert.Zero(t, snap.Total)
}

func TestNormalizeBytes(t *testing.T) {
	n, _, task := newTestNormalizer()

	snap, ok := n.Normalize(task, KindVideo, Event{
		DownloadedBytes: 2500,
		TotalBytes:      10_000,
		Speed:           1024,
		ETA:             7,
	})
	require.True(t, ok)
	assert.True(t, snap.HasFraction)
	assert.False(t, snap.Placeholder)
	assert.InDelta(t, 0.25, snap.Fraction, 1e-9)
	assert.Equal(t, int64(10_000), snap.Total)
	assert.Equal(t, 1024.0, snap.Speed)
	assert.Equal(t, 7.0, snap.ETA)
}

func TestNormalizeUnknownTotal(t *testing.T) {
	n, _, task := newTestNormalizer()

	snap, ok := n.Normalize(task, KindMain, Event{DownloadedBytes: 4096, Speed: 100})
	require.True(t, ok)
	assert.False(t, snap.HasFraction)
	assert.False(t, snap.Placeholder)
	assert.Zero(t, snap.Fraction)
	assert.Zero(t, snap.Total)
	assert.Equal(t, int64(4096), snap.Downloaded)
	assert.Equal(t, 100.0, snap.Speed)
}

func TestNormalizeOverrun(t *testing.T) {
	t.Run("slight overrun clamps", func(t *testing.T) {
		n, _, task := newTestNormalizer()
		snap, ok := n.Normalize(task, KindMain, Event{DownloadedBytes: 11_000, TotalBytes: 10_000})
		require.True(t, ok)
		assert.Equal(t, 1.0, snap.Fraction)
		assert.False(t, snap.Placeholder)
	})

	t.Run("large overrun without prefetch", func(t *testing.T) {
		n, _, task := newTestNormalizer()
		snap, ok := n.Normalize(task, KindMain, Event{DownloadedBytes: 50_000, TotalBytes: 10_000})
		require.True(t, ok)
		assert.True(t, snap.Placeholder)
		assert.Equal(t, PlaceholderFraction, snap.Fraction)
	})

	t.Run("large overrun against prefetch", func(t *testing.T) {
		n, sizes, task := newTestNormalizer()
		sizes.SetPrefetched(task, KindMain, 10_000)
		snap, ok := n.Normalize(task, KindMain, Event{DownloadedBytes: 50_000})
		require.True(t, ok)
		assert.True(t, snap.Placeholder)
	})
}

func TestNormalizeNegativeBytes(t *testing.T) {
	n, _, task := newTestNormalizer()

	_, ok := n.Normalize(task, KindMain, Event{DownloadedBytes: -1, TotalBytes: 10_000})
	assert.False(t, ok)
}

func TestNormalizeFractionBounded(t *testing.T) {
	n, sizes, task := newTestNormalizer()
	sizes.SetPrefetched(task, KindVideo, 1_000_000)

	events := []Event{
		{DownloadedBytes: 0},
		{DownloadedBytes: 100_000, TotalBytes: 2000},
		{DownloadedBytes: 500_000, FragmentIndex: 3, FragmentCount: 2},
		{DownloadedBytes: 1_150_000},
		{DownloadedBytes: 9_000_000},
	}

	for _, ev := range events {
		snap, ok := n.Normalize(task, KindVideo, ev)
		require.True(t, ok)
		assert.GreaterOrEqual(t, snap.Fraction, 0.0)
		assert.LessOrEqual(t, snap.Fraction, 1.0)
	}
}
