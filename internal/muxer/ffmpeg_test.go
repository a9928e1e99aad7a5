package muxer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeFFmpeg installs a shell script standing in for ffmpeg
func writeFakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestNewFFmpegMuxerDefaults(t *testing.T) {
	m := NewFFmpegMuxer("", nil)
	assert.Equal(t, "ffmpeg", m.Path)
	assert.Equal(t, "aac", m.AudioCodec)
	assert.Equal(t, DefaultTimeout, m.Timeout)
}

func TestArgs(t *testing.T) {
	m := NewFFmpegMuxer("ffmpeg", nil)

	args := m.args("v.mp4", "a.m4a", "out.mp4", Metadata{Title: "Title", Artist: "Someone"})

	assert.Equal(t, []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "v.mp4",
		"-i", "a.m4a",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-metadata", "title=Title",
		"-metadata", "artist=Someone",
		"-y", "out.mp4",
	}, args)
}

func TestMergeSuccess(t *testing.T) {
	// The fake writes its last argument, like ffmpeg writes the output file
	path := writeFakeFFmpeg(t, `for last; do :; done; echo merged > "$last"`)
	m := NewFFmpegMuxer(path, nil)
	require.True(t, m.Available())

	out := filepath.Join(t.TempDir(), "out.mp4")
	err := m.Merge(context.Background(), "v.mp4", "a.m4a", out, Metadata{})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "merged\n", string(data))
}

func TestMergeFailureKeepsOutput(t *testing.T) {
	path := writeFakeFFmpeg(t, `echo "Invalid data found when processing input" >&2; exit 1`)
	m := NewFFmpegMuxer(path, nil)

	err := m.Merge(context.Background(), "v.mp4", "a.m4a", "out.mp4", Metadata{})
	require.Error(t, err)

	var mergeErr *MergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, "Invalid data found when processing input", mergeErr.Output)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestMergeMissingBinary(t *testing.T) {
	m := NewFFmpegMuxer(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	assert.False(t, m.Available())

	err := m.Merge(context.Background(), "v", "a", "o", Metadata{})
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestVersion(t *testing.T) {
	path := writeFakeFFmpeg(t, `echo "ffmpeg version 6.1 Copyright"; echo "built with gcc"`)
	m := NewFFmpegMuxer(path, nil)

	version, err := m.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 6.1 Copyright", version)
}
