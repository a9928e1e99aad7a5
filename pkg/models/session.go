package models

import "time"

// SessionStatus is the lifecycle state recorded for a download session
type SessionStatus string

const (
	SessionDownloading     SessionStatus = "downloading"
	SessionVideoDownloaded SessionStatus = "video_downloaded"
	SessionAudioDownloaded SessionStatus = "audio_downloaded"
	SessionDownloaded      SessionStatus = "downloaded"
	SessionCompleted       SessionStatus = "completed"
	SessionFailed          SessionStatus = "failed"
)

// Session is the record persisted as session_info.json in each working directory
type Session struct {
	ID          string        `json:"sessionId"`
	Title       string        `json:"title"`
	Quality     string        `json:"quality"`
	CreatedTime time.Time     `json:"createdTime"`
	UpdatedTime time.Time     `json:"updatedTime"`
	Status      SessionStatus `json:"status"`

	// Dir is the working directory; it is derived, not persisted.
	Dir  string `json:"-"`
	Size int64  `json:"-"`
}
