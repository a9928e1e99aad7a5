package youtube

import (
	"strconv"
	"strings"

	"ytdownloader/pkg/models"
)

type filter struct {
	key, op, value string
}

// Match resolves a yt-dlp style selector such as
// "137/bestvideo[height<=1080][ext=mp4]/bestvideo" against formats and
// returns the index of the chosen format, or -1. Alternatives are tried
// left to right.
func Match(formats []models.Format, selector string) int {
	for _, alt := range strings.Split(selector, "/") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if _, err := strconv.Atoi(alt); err == nil {
			if i := indexOf(formats, alt); i >= 0 {
				return i
			}
			continue
		}
		if i := matchAlternative(formats, alt); i >= 0 {
			return i
		}
	}
	return -1
}

func indexOf(formats []models.Format, id string) int {
	for i, f := range formats {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func matchAlternative(formats []models.Format, alt string) int {
	name, rest, _ := strings.Cut(alt, "[")
	filters, ok := parseFilters(rest)
	if !ok {
		return -1
	}

	best := -1
	for i, f := range formats {
		if !kindMatches(name, f) || !filtersMatch(filters, f) {
			continue
		}
		if best < 0 || better(name, f, formats[best]) {
			best = i
		}
	}
	return best
}

// parseFilters parses `height<=720][ext=mp4]`, the text after the first "["
func parseFilters(s string) ([]filter, bool) {
	if s == "" {
		return nil, true
	}

	var filters []filter
	for _, part := range strings.Split(strings.TrimSuffix(s, "]"), "][") {
		f, ok := parseFilter(part)
		if !ok {
			return nil, false
		}
		filters = append(filters, f)
	}
	return filters, true
}

func parseFilter(s string) (filter, bool) {
	for _, op := range []string{"<=", ">=", "!=", "=", "<", ">"} {
		if key, value, ok := strings.Cut(s, op); ok {
			return filter{key: strings.TrimSpace(key), op: op, value: strings.TrimSpace(value)}, true
		}
	}
	return filter{}, false
}

func kindMatches(name string, f models.Format) bool {
	switch name {
	case "bestvideo":
		return f.HasVideo && !f.HasAudio
	case "bestaudio":
		return f.HasAudio && !f.HasVideo
	case "best":
		return f.HasVideo && f.HasAudio
	default:
		return false
	}
}

func filtersMatch(filters []filter, f models.Format) bool {
	for _, flt := range filters {
		if !flt.match(f) {
			return false
		}
	}
	return true
}

func (flt filter) match(f models.Format) bool {
	switch flt.key {
	case "height", "width", "fps":
		want, err := strconv.ParseFloat(flt.value, 64)
		if err != nil {
			return false
		}
		have := map[string]float64{"height": float64(f.Height), "width": float64(f.Width), "fps": f.FPS}[flt.key]
		return compare(have, flt.op, want)
	case "ext":
		return equality(f.Ext, flt.op, flt.value)
	case "acodec":
		return equality(codecOrNone(f.HasAudio, f.AudioCodec), flt.op, flt.value)
	case "vcodec":
		return equality(codecOrNone(f.HasVideo, f.VideoCodec), flt.op, flt.value)
	default:
		return false
	}
}

func compare(have float64, op string, want float64) bool {
	switch op {
	case "<=":
		return have <= want
	case ">=":
		return have >= want
	case "<":
		return have < want
	case ">":
		return have > want
	case "=":
		return have == want
	case "!=":
		return have != want
	}
	return false
}

func equality(have, op, want string) bool {
	switch op {
	case "=":
		return have == want
	case "!=":
		return have != want
	}
	return false
}

func codecOrNone(present bool, codec string) string {
	if !present {
		return "none"
	}
	return codec
}

func better(name string, a, b models.Format) bool {
	if name == "bestaudio" {
		return a.AudioBitrate > b.AudioBitrate
	}
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	if a.FPS != b.FPS {
		return a.FPS > b.FPS
	}
	return a.Size() > b.Size()
}
