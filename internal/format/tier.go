package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidTier = errors.New("invalid quality tier")

// TierKind enumerates the supported quality tiers
type TierKind int

const (
	TierBest TierKind = iota
	TierHeight
	TierAudioOnly
)

// Tier is a quality request. Height is only meaningful for TierHeight.
type Tier struct {
	Kind   TierKind
	Height int
}

var (
	Best      = Tier{Kind: TierBest}
	P1080     = Tier{Kind: TierHeight, Height: 1080}
	P720      = Tier{Kind: TierHeight, Height: 720}
	P480      = Tier{Kind: TierHeight, Height: 480}
	AudioOnly = Tier{Kind: TierAudioOnly}
)

// HeightTier returns a tier capped at the given height
func HeightTier(height int) Tier {
	return Tier{Kind: TierHeight, Height: height}
}

// ParseTier parses "best", "audio", "720p" or "720"
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "best":
		return Best, nil
	case "audio", "audio-only", "audioonly":
		return AudioOnly, nil
	}

	height, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || height <= 0 {
		return Tier{}, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}

	return HeightTier(height), nil
}

func (t Tier) String() string {
	switch t.Kind {
	case TierBest:
		return "best"
	case TierHeight:
		return fmt.Sprintf("%dp", t.Height)
	case TierAudioOnly:
		return "audio"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
