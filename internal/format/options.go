package format

import (
	"fmt"
	"sort"

	"ytdownloader/pkg/models"
)

// Option is one entry of the quality list shown to the user
type Option struct {
	Tier        Tier   `json:"tier"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Height      int    `json:"height"`
	NeedsMerge  bool   `json:"needsMerge"`
	NoAudio     bool   `json:"noAudio"`
}

// Options derives the ordered quality choices for a format list: the best
// option first, then each distinct combined height, then audio-only.
func Options(formats []models.Format) []Option {
	p := partitionFormats(formats)

	maxVideo := heightOf(highest(p.videoOnly))
	maxCombined := heightOf(highest(p.combined))
	hasAudio := len(p.audioOnly) > 0

	var options []Option
	needsMerge := false

	switch {
	case maxVideo > maxCombined && hasAudio:
		needsMerge = true
		options = append(options, Option{
			Tier:        Best,
			Label:       fmt.Sprintf("Best quality (%dp, merged)", maxVideo),
			Description: fmt.Sprintf("%dp video and audio downloaded separately and merged; best quality but slower", maxVideo),
			Height:      maxVideo,
			NeedsMerge:  true,
		})
	case maxVideo > maxCombined:
		options = append(options, Option{
			Tier:        Best,
			Label:       fmt.Sprintf("Best quality (%dp video only, no audio)", maxVideo),
			Description: fmt.Sprintf("Highest quality %dp video; this format has no audio", maxVideo),
			Height:      maxVideo,
			NoAudio:     true,
		})
	case maxCombined > 0:
		options = append(options, Option{
			Tier:        Best,
			Label:       fmt.Sprintf("Best quality (%dp)", maxCombined),
			Description: fmt.Sprintf("Highest quality %dp video with audio", maxCombined),
			Height:      maxCombined,
		})
	}

	for _, h := range uniqueHeights(p.combined) {
		if !needsMerge && maxVideo <= maxCombined && h == maxCombined {
			continue
		}
		options = append(options, Option{
			Tier:        HeightTier(h),
			Label:       fmt.Sprintf("%dp", h),
			Description: fmt.Sprintf("%dp video with audio", h),
			Height:      h,
		})
	}

	if hasAudio {
		options = append(options, Option{
			Tier:        AudioOnly,
			Label:       "Audio only",
			Description: "Audio track only",
		})
	}

	return options
}

func uniqueHeights(formats []models.Format) []int {
	seen := make(map[int]bool)
	var heights []int
	for _, f := range formats {
		if !seen[f.Height] {
			seen[f.Height] = true
			heights = append(heights, f.Height)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	return heights
}

// Entry is one deduplicated line of a format listing
type Entry struct {
	Height      int    `json:"height"`
	Description string `json:"description"`
}

// Listing groups the available formats for display
type Listing struct {
	Combined   []Entry `json:"combined"`
	VideoOnly  []Entry `json:"videoOnly"`
	AudioCount int     `json:"audioCount"`
	// MergeHeight is set when merging video-only with audio beats every
	// combined format
	MergeHeight int `json:"mergeHeight,omitempty"`
}

// List builds a listing deduplicated by (height, description), tallest first
func List(formats []models.Format) Listing {
	p := partitionFormats(formats)

	listing := Listing{
		Combined:   entries(p.combined),
		VideoOnly:  entries(p.videoOnly),
		AudioCount: len(p.audioOnly),
	}

	maxVideo := heightOf(highest(p.videoOnly))
	if maxVideo > heightOf(highest(p.combined)) && listing.AudioCount > 0 {
		listing.MergeHeight = maxVideo
	}

	return listing
}

// Describe renders a human-readable descriptor such as "1080p@30fps (mp4)"
func Describe(f models.Format) string {
	if f.Height <= 0 {
		desc := "audio"
		if f.AudioBitrate > 0 {
			desc = fmt.Sprintf("audio %.0fk", f.AudioBitrate)
		}
		if f.Ext != "" {
			desc += fmt.Sprintf(" (%s)", f.Ext)
		}
		return desc
	}

	desc := fmt.Sprintf("%dp", f.Height)
	if f.FPS > 0 {
		desc += fmt.Sprintf("@%.0ffps", f.FPS)
	}
	if f.Ext != "" {
		desc += fmt.Sprintf(" (%s)", f.Ext)
	}
	return desc
}

func entries(formats []models.Format) []Entry {
	seen := make(map[Entry]bool)
	var out []Entry
	for _, f := range formats {
		e := Entry{Height: f.Height, Description: Describe(f)}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Height > out[j].Height
	})

	return out
}
