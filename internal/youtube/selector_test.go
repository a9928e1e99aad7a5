package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ytdownloader/pkg/models"
)

func sampleFormats() []models.Format {
	return []models.Format{
		{ID: "18", Height: 360, HasVideo: true, HasAudio: true, Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a"},
		{ID: "22", Height: 720, HasVideo: true, HasAudio: true, Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a"},
		{ID: "43", Height: 360, HasVideo: true, HasAudio: true, Ext: "webm"},
		{ID: "137", Height: 1080, HasVideo: true, Ext: "mp4", FPS: 30},
		{ID: "299", Height: 1080, HasVideo: true, Ext: "mp4", FPS: 60},
		{ID: "313", Height: 2160, HasVideo: true, Ext: "webm"},
		{ID: "140", HasAudio: true, Ext: "m4a", AudioBitrate: 128},
		{ID: "251", HasAudio: true, Ext: "webm", AudioBitrate: 160},
	}
}

func TestMatch(t *testing.T) {
	formats := sampleFormats()

	tests := []struct {
		selector string
		want     string
	}{
		{"22", "22"},
		{"999/22", "22"},
		{"bestvideo", "313"},
		{"bestvideo[ext=mp4]", "299"},
		{"bestvideo[height<=1080][ext=mp4]/bestvideo[height<=1080]", "299"},
		{"bestvideo[height<=1080][fps<=30]", "137"},
		{"bestaudio", "251"},
		{"bestaudio[ext=m4a]/bestaudio", "140"},
		{"best", "22"},
		{"best[height<=480][acodec!=none][ext=mp4]/best[height<=480][acodec!=none]", "18"},
		{"best[ext=webm]", "43"},
		{"313/bestvideo[ext=mp4]/bestvideo", "313"},
		{"best[height<=144]/bestaudio", "251"},
		{"bestvideo[vcodec=none]", ""},
		{"worst", ""},
		{"best[height~=720]", ""},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			idx := Match(formats, tt.selector)
			if tt.want == "" {
				assert.Equal(t, -1, idx)
				return
			}
			if assert.GreaterOrEqual(t, idx, 0) {
				assert.Equal(t, tt.want, formats[idx].ID)
			}
		})
	}
}
