package progress

import (
	"fmt"
	"strings"
)

// Computing is shown in place of an unknown speed or ETA
const Computing = "computing"

var byteUnits = []string{"B", "KB", "MB", "GB"}

// FormatBytes renders n with one decimal and a binary unit suffix
func FormatBytes(n float64) string {
	for _, unit := range byteUnits {
		if n < 1024 {
			return fmt.Sprintf("%.1f%s", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%.1fTB", n)
}

// FormatSpeed renders a transfer rate in bytes per second
func FormatSpeed(bps float64) string {
	if bps <= 0 {
		return Computing
	}
	return FormatBytes(bps) + "/s"
}

// FormatETA renders a remaining time in seconds
func FormatETA(seconds float64) string {
	if seconds <= 0 {
		return Computing
	}

	s := int(seconds + 0.5)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm%ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh%dm", s/3600, (s%3600)/60)
	}
}

// Describe renders a one-line status for a snapshot
func Describe(label string, snap Snapshot) string {
	var b strings.Builder
	b.WriteString(label)

	if snap.HasFraction {
		fmt.Fprintf(&b, ": %.1f%%", snap.Fraction*100)
	}

	switch {
	case snap.Total > 0:
		fmt.Fprintf(&b, " (%s/%s)", FormatBytes(float64(snap.Downloaded)), FormatBytes(float64(snap.Total)))
	case snap.Downloaded > 0:
		fmt.Fprintf(&b, " (%s)", FormatBytes(float64(snap.Downloaded)))
	}

	fmt.Fprintf(&b, " | speed: %s", FormatSpeed(snap.Speed))
	if snap.HasFraction {
		fmt.Fprintf(&b, " | eta: %s", FormatETA(snap.ETA))
	}

	return b.String()
}
