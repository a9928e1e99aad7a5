package progress

const (
	// OverrunLimit is the fraction above which a total is considered wrong
	OverrunLimit = 1.2
	// PlaceholderFraction is shown when the known total is overrun
	PlaceholderFraction = 0.5

	minEstimateFraction = 0.005
)

// Normalizer turns raw fetcher events into snapshots using a SizeCache
type Normalizer struct {
	sizes *SizeCache
}

// NewNormalizer creates a normalizer backed by sizes
func NewNormalizer(sizes *SizeCache) *Normalizer {
	return &Normalizer{sizes: sizes}
}

// Normalize converts ev into a snapshot. The second return value is false
// when the event carries nothing reportable (negative byte counts).
func (n *Normalizer) Normalize(task uint64, kind Kind, ev Event) (Snapshot, bool) {
	if ev.DownloadedBytes < 0 {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Downloaded: ev.DownloadedBytes,
		Speed:      positive(ev.Speed),
		ETA:        positive(ev.ETA),
	}

	if ev.FragmentCount > 0 {
		fraction := float64(ev.FragmentIndex) / float64(ev.FragmentCount)
		snap.Fraction = clamp(fraction)
		snap.HasFraction = true
		if fraction > minEstimateFraction && ev.DownloadedBytes > MinPlausibleSize {
			snap.Total = int64(float64(ev.DownloadedBytes) / fraction)
			snap.TotalEstimated = true
		}
		return snap, true
	}

	// Without a total only bytes and speed are known
	total, ok := n.sizes.Resolve(task, kind, ev)
	if !ok {
		return snap, true
	}

	fraction := float64(ev.DownloadedBytes) / float64(total)
	if fraction > OverrunLimit {
		prefetched, ok := n.sizes.Prefetched(task, kind)
		if !ok {
			return withPlaceholder(snap), true
		}
		total = prefetched
		fraction = float64(ev.DownloadedBytes) / float64(total)
		if fraction > OverrunLimit {
			return withPlaceholder(snap), true
		}
	}

	snap.Total = total
	snap.Fraction = clamp(fraction)
	snap.HasFraction = true

	return snap, true
}

func withPlaceholder(snap Snapshot) Snapshot {
	snap.Fraction = PlaceholderFraction
	snap.Placeholder = true
	return snap
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func positive(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}
