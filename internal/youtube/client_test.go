package youtube

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdownloader/internal/downloader"
)

func TestToFormat(t *testing.T) {
	tests := []struct {
		name string
		in   youtube.Format
		want func(t *testing.T, got formatView)
	}{
		{
			name: "combined mp4",
			in: youtube.Format{
				ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`,
				Width: 640, Height: 360, FPS: 25, AudioChannels: 2, ContentLength: 1000, QualityLabel: "360p",
			},
			want: func(t *testing.T, got formatView) {
				assert.Equal(t, formatView{"18", "mp4", true, true, "avc1.42001E", "mp4a.40.2", 360, 0}, got)
			},
		},
		{
			name: "video only",
			in:   youtube.Format{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Height: 1080},
			want: func(t *testing.T, got formatView) {
				assert.Equal(t, formatView{"137", "mp4", true, false, "avc1.640028", "", 1080, 0}, got)
			},
		},
		{
			name: "audio mp4 becomes m4a",
			in:   youtube.Format{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2, AverageBitrate: 129500, Bitrate: 130000},
			want: func(t *testing.T, got formatView) {
				assert.Equal(t, formatView{"140", "m4a", false, true, "", "mp4a.40.2", 0, 129.5}, got)
			},
		},
		{
			name: "audio webm",
			in:   youtube.Format{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, AudioChannels: 2, Bitrate: 160000},
			want: func(t *testing.T, got formatView) {
				assert.Equal(t, formatView{"251", "webm", false, true, "", "opus", 0, 160}, got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := toFormat(tt.in)
			tt.want(t, formatView{f.ID, f.Ext, f.HasVideo, f.HasAudio, f.VideoCodec, f.AudioCodec, f.Height, f.AudioBitrate})
		})
	}
}

type formatView struct {
	ID         string
	Ext        string
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	Height     int
	ABR        float64
}

func TestToVideoInfo(t *testing.T) {
	video := &youtube.Video{
		ID:          "jNQXAC9IVRw",
		Title:       "Me at the zoo",
		Author:      "jawed",
		Views:       300000000,
		Duration:    19 * time.Second,
		PublishDate: time.Date(2005, 4, 24, 0, 0, 0, 0, time.UTC),
		Thumbnails: youtube.Thumbnails{
			{URL: "https://i.ytimg.com/small.jpg"},
			{URL: "https://i.ytimg.com/large.jpg"},
		},
		Formats: youtube.FormatList{{ItagNo: 18, MimeType: "video/mp4", Height: 360, AudioChannels: 2}},
	}

	info := toVideoInfo(video, "https://youtu.be/jNQXAC9IVRw")

	assert.Equal(t, "Me at the zoo", info.Title)
	assert.Equal(t, "jawed", info.Uploader)
	assert.Equal(t, 19, info.Duration)
	assert.Equal(t, int64(300000000), info.ViewCount)
	assert.Equal(t, "20050424", info.UploadDate)
	assert.Equal(t, "https://i.ytimg.com/large.jpg", info.Thumbnail)
	require.Len(t, info.Formats, 1)
	assert.Equal(t, "18", info.Formats[0].ID)
}

func TestWrapVideoError(t *testing.T) {
	var metaErr *downloader.MetadataError

	err := wrapVideoError(fmt.Errorf("get video: %w", youtube.ErrVideoPrivate))
	require.ErrorAs(t, err, &metaErr)
	assert.Equal(t, downloader.MetadataExtractionFailed, metaErr.Kind)
	assert.ErrorIs(t, err, youtube.ErrVideoPrivate)

	plain := errors.New("dial tcp: connection refused")
	assert.Same(t, plain, wrapVideoError(plain))
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(Config{Proxy: "://bad"})
	assert.Error(t, err)
}

func TestUserAgentTransport(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := &http.Client{Transport: &userAgentTransport{next: http.DefaultTransport, userAgent: "ytdownloader/1.0"}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "ytdownloader/1.0", got)
}
