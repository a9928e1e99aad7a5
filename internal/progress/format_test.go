package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0B"},
		{512, "512.0B"},
		{1536, "1.5KB"},
		{10 * 1024 * 1024, "10.0MB"},
		{3.5 * 1024 * 1024 * 1024, "3.5GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0TB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.in))
		})
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, Computing},
		{-3, Computing},
		{45, "45s"},
		{192, "3m12s"},
		{3900, "1h5m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatETA(tt.in))
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, Computing, FormatSpeed(0))
	assert.Equal(t, "2.0MB/s", FormatSpeed(2*1024*1024))
}

func TestDescribe(t *testing.T) {
	line := Describe("video", Snapshot{
		Fraction:    0.5,
		HasFraction: true,
		Downloaded:  1024,
		Total:       2048,
		Speed:       1024,
		ETA:         1,
	})
	assert.Equal(t, "video: 50.0% (1.0KB/2.0KB) | speed: 1.0KB/s | eta: 1s", line)

	line = Describe("audio", Snapshot{Placeholder: true, Fraction: 0.5, Downloaded: 2048})
	assert.Equal(t, "audio (2.0KB) | speed: computing", line)
}
