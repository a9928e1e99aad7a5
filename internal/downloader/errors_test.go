package downloader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdownloader/internal/format"
	"ytdownloader/internal/progress"
)

func TestClassifyMetadataError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want MetadataErrorKind
	}{
		{"deadline", fmt.Errorf("resolve: %w", context.DeadlineExceeded), MetadataTimeout},
		{"timed out text", errors.New("Read timed out. (read timeout=20)"), MetadataTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "www.youtube.com"}, MetadataNetworkUnreachable},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), MetadataNetworkUnreachable},
		{"connection text", errors.New("Connection reset by peer"), MetadataNetworkUnreachable},
		{"unreachable text", errors.New("host unreachable"), MetadataNetworkUnreachable},
		{"extract", errors.New("ERROR: [youtube] abc: Failed to extract any player response"), MetadataExtractionFailed},
		{"unknown", errors.New("Video unavailable"), MetadataUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyMetadataError(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyKeepsMetadataError(t *testing.T) {
	original := &MetadataError{Kind: MetadataExtractionFailed, Err: errors.New("private video")}
	assert.Same(t, original, classifyMetadataError(fmt.Errorf("wrapped: %w", original)))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancelled", ErrCancelled, "Download cancelled"},
		{"busy", ErrBusy, "Another download is in progress"},
		{"timeout", &MetadataError{Kind: MetadataTimeout, Err: context.DeadlineExceeded}, "Network unreachable: check your connection and try again"},
		{"network", &MetadataError{Kind: MetadataNetworkUnreachable, Err: errors.New("dns")}, "Network unreachable: check your connection and try again"},
		{"extraction", &MetadataError{Kind: MetadataExtractionFailed, Err: errors.New("bad page")}, "Failed to get video info: bad page"},
		{"no formats", format.ErrNoFormatsAvailable, "No downloadable formats found for this video"},
		{"no match", fmt.Errorf("%w: 480p", format.ErrNoMatchingFormat), "No format matches the selected quality"},
		{"exists", &FileExistsError{Path: "/tmp/a.mp4"}, "File already exists: /tmp/a.mp4"},
		{"transfer", &TransferError{Kind: progress.KindVideo, Err: errors.New("HTTP Error 403")}, "Download failed: HTTP Error 403"},
		{"merge", &MergeError{Output: "moov atom not found", Err: errors.New("exit status 1")}, "Merging video and audio failed: moov atom not found"},
		{"move", &FileMoveError{Destination: "/tmp/a.mp4", Err: ErrNoOutput}, "Could not move the downloaded file: no output file produced"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestStageString(t *testing.T) {
	stages := map[Stage]string{
		StageWaiting:       "waiting",
		StageFetchingVideo: "fetching_video",
		StageFetchingAudio: "fetching_audio",
		StageMerging:       "merging",
		StageCompleted:     "completed",
		StageFailed:        "failed",
		StageCancelled:     "cancelled",
	}
	for stage, want := range stages {
		assert.Equal(t, want, stage.String())

		var decoded Stage
		require.NoError(t, decoded.UnmarshalText([]byte(want)))
		assert.Equal(t, stage, decoded)
	}
	var decoded Stage
	assert.Error(t, decoded.UnmarshalText([]byte("sleeping")))
	assert.True(t, StageCancelled.Terminal())
	assert.False(t, StageMerging.Terminal())
}
