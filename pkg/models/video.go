package models

// VideoInfo represents resolved video metadata
type VideoInfo struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Duration    int      `json:"duration"`
	Uploader    string   `json:"uploader"`
	UploadDate  string   `json:"uploadDate"`
	ViewCount   int64    `json:"viewCount"`
	Description string   `json:"description"`
	Thumbnail   string   `json:"thumbnail"`
	Formats     []Format `json:"formats"`
}

// Format describes one deliverable stream of a video
type Format struct {
	ID             string  `json:"id"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	HasVideo       bool    `json:"hasVideo"`
	HasAudio       bool    `json:"hasAudio"`
	Ext            string  `json:"ext"`
	FPS            float64 `json:"fps"`
	FileSize       int64   `json:"fileSize"`
	FileSizeApprox int64   `json:"fileSizeApprox"`
	AudioBitrate   float64 `json:"audioBitrate"`
	VideoCodec     string  `json:"videoCodec"`
	AudioCodec     string  `json:"audioCodec"`
	Note           string  `json:"note"`
}

// Size returns the exact size when known, otherwise the approximation
func (f Format) Size() int64 {
	if f.FileSize > 0 {
		return f.FileSize
	}
	return f.FileSizeApprox
}

// IsMP4 reports whether the container is mp4 (or its audio variant m4a)
func (f Format) IsMP4() bool {
	return f.Ext == "mp4" || f.Ext == "m4a"
}
