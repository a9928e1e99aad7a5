package format

import (
	"errors"
	"fmt"

	"ytdownloader/internal/progress"
	"ytdownloader/pkg/models"
)

var (
	ErrNoFormatsAvailable = errors.New("no formats available")
	ErrNoMatchingFormat   = errors.New("no format matches the requested quality")
)

// AudioSuffix is appended to audio-only filenames
const AudioSuffix = "_audio"

// Mode tells whether a plan needs one transfer or two
type Mode int

const (
	ModeSingle Mode = iota
	ModeDual
)

func (m Mode) String() string {
	if m == ModeDual {
		return "dual"
	}
	return "single"
}

// Plan is the resolved outcome of a quality selection
type Plan struct {
	Tier Tier
	Mode Mode

	// Selector is set for single-stream plans
	Selector string
	Primary  *models.Format

	// VideoSelector and AudioSelector are set for dual-stream plans
	VideoSelector string
	AudioSelector string
	Video         *models.Format
	Audio         *models.Format

	Height           int
	NeedsMerge       bool
	NoAudio          bool
	AudioOnly        bool
	ResolutionSuffix string
}

type partition struct {
	combined  []models.Format
	videoOnly []models.Format
	audioOnly []models.Format
}

func partitionFormats(formats []models.Format) partition {
	var p partition
	for _, f := range formats {
		switch {
		case f.HasVideo && f.HasAudio && f.Height > 0:
			p.combined = append(p.combined, f)
		case f.HasVideo && !f.HasAudio && f.Height > 0:
			p.videoOnly = append(p.videoOnly, f)
		case f.HasAudio && !f.HasVideo:
			p.audioOnly = append(p.audioOnly, f)
		}
	}
	return p
}

// Select resolves tier against formats. Selection is deterministic: ties
// are broken by container (mp4/m4a first), then by list order.
func Select(tier Tier, formats []models.Format) (*Plan, error) {
	if len(formats) == 0 {
		return nil, ErrNoFormatsAvailable
	}

	p := partitionFormats(formats)

	switch tier.Kind {
	case TierBest:
		return selectBest(tier, p)
	case TierHeight:
		return selectHeight(tier, p)
	case TierAudioOnly:
		return selectAudio(tier, p)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidTier, tier.Kind)
	}
}

func selectBest(tier Tier, p partition) (*Plan, error) {
	video := highest(p.videoOnly)
	combined := highest(p.combined)
	audio := bestAudio(p.audioOnly)

	videoHeight := heightOf(video)
	combinedHeight := heightOf(combined)

	switch {
	case video != nil && videoHeight > combinedHeight && audio != nil:
		return &Plan{
			Tier:             tier,
			Mode:             ModeDual,
			VideoSelector:    selector(video.ID, "bestvideo[ext=mp4]/bestvideo"),
			AudioSelector:    selector(audio.ID, "bestaudio[ext=m4a]/bestaudio"),
			Video:            video,
			Audio:            audio,
			Height:           videoHeight,
			NeedsMerge:       true,
			ResolutionSuffix: heightSuffix(videoHeight),
		}, nil
	case video != nil && videoHeight > combinedHeight:
		return &Plan{
			Tier:             tier,
			Mode:             ModeSingle,
			Selector:         selector(video.ID, fmt.Sprintf("bestvideo[height<=%d][ext=mp4]/bestvideo[height<=%d]", videoHeight, videoHeight)),
			Primary:          video,
			Height:           videoHeight,
			NoAudio:          true,
			ResolutionSuffix: heightSuffix(videoHeight),
		}, nil
	case combined != nil:
		return &Plan{
			Tier:             tier,
			Mode:             ModeSingle,
			Selector:         selector(combined.ID, "best[ext=mp4]/best"),
			Primary:          combined,
			Height:           combinedHeight,
			ResolutionSuffix: heightSuffix(combinedHeight),
		}, nil
	case audio != nil:
		return selectAudio(tier, p)
	default:
		return nil, ErrNoMatchingFormat
	}
}

func selectHeight(tier Tier, p partition) (*Plan, error) {
	var eligible []models.Format
	for _, f := range p.combined {
		if f.Height <= tier.Height {
			eligible = append(eligible, f)
		}
	}

	chosen := highest(eligible)
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatchingFormat, tier)
	}

	h := tier.Height
	return &Plan{
		Tier:             tier,
		Mode:             ModeSingle,
		Selector:         selector(chosen.ID, fmt.Sprintf("best[height<=%d][acodec!=none][ext=mp4]/best[height<=%d][acodec!=none]", h, h)),
		Primary:          chosen,
		Height:           chosen.Height,
		ResolutionSuffix: heightSuffix(h),
	}, nil
}

func selectAudio(tier Tier, p partition) (*Plan, error) {
	audio := bestAudio(p.audioOnly)
	if audio == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatchingFormat, AudioOnly)
	}

	return &Plan{
		Tier:             tier,
		Mode:             ModeSingle,
		Selector:         selector(audio.ID, "bestaudio[ext=m4a]/bestaudio"),
		Primary:          audio,
		AudioOnly:        true,
		ResolutionSuffix: AudioSuffix,
	}, nil
}

// highest returns the tallest format, preferring mp4 and then higher frame
// rates among formats of equal height
func highest(formats []models.Format) *models.Format {
	var best *models.Format
	for i := range formats {
		f := &formats[i]
		if best == nil || f.Height > best.Height {
			best = f
			continue
		}
		if f.Height < best.Height {
			continue
		}
		if f.IsMP4() != best.IsMP4() {
			if f.IsMP4() {
				best = f
			}
			continue
		}
		if f.FPS > best.FPS {
			best = f
		}
	}
	return best
}

// bestAudio returns the highest bitrate audio format, preferring m4a on ties
func bestAudio(formats []models.Format) *models.Format {
	var best *models.Format
	for i := range formats {
		f := &formats[i]
		switch {
		case best == nil, f.AudioBitrate > best.AudioBitrate:
			best = f
		case f.AudioBitrate == best.AudioBitrate && f.IsMP4() && !best.IsMP4():
			best = f
		}
	}
	return best
}

func heightOf(f *models.Format) int {
	if f == nil {
		return 0
	}
	return f.Height
}

// selector builds a yt-dlp format selector that pins the chosen format id
// and falls back to generic alternatives
func selector(id, fallback string) string {
	if id == "" {
		return fallback
	}
	return id + "/" + fallback
}

func heightSuffix(height int) string {
	if height <= 0 {
		return ""
	}
	return fmt.Sprintf("_%dp", height)
}

// PrefetchSizes returns the sizes the chosen formats advertise, keyed by the
// transfer they belong to. Formats without a known size are omitted.
func PrefetchSizes(plan *Plan) map[progress.Kind]int64 {
	sizes := make(map[progress.Kind]int64, 2)
	add := func(kind progress.Kind, f *models.Format) {
		if f != nil && f.Size() > 0 {
			sizes[kind] = f.Size()
		}
	}

	if plan.Mode == ModeDual {
		add(progress.KindVideo, plan.Video)
		add(progress.KindAudio, plan.Audio)
	} else {
		add(progress.KindMain, plan.Primary)
	}
	return sizes
}
