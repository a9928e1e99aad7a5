package downloader

import (
	"fmt"
	"time"

	"ytdownloader/internal/format"
	"ytdownloader/internal/progress"
)

// Stage represents where a download task currently is
type Stage int

const (
	StageWaiting Stage = iota
	StageFetchingVideo
	StageFetchingAudio
	StageMerging
	StageCompleted
	StageFailed
	StageCancelled
)

func (s Stage) String() string {
	switch s {
	case StageWaiting:
		return "waiting"
	case StageFetchingVideo:
		return "fetching_video"
	case StageFetchingAudio:
		return "fetching_audio"
	case StageMerging:
		return "merging"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the stage by name
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name written by MarshalText
func (s *Stage) UnmarshalText(text []byte) error {
	for stage := StageWaiting; stage <= StageCancelled; stage++ {
		if stage.String() == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// Terminal reports whether no further updates follow this stage
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// Task is one download driven by a Downloader
type Task struct {
	ID             uint64       `json:"id"`
	URL            string       `json:"url"`
	Title          string       `json:"title"`
	Tier           format.Tier  `json:"quality"`
	Plan           *format.Plan `json:"-"`
	DestinationDir string       `json:"destinationDir"`
	Filename       string       `json:"filename"`
	OutputPath     string       `json:"outputPath"`
	SessionID      string       `json:"sessionId"`
	WorkingDir     string       `json:"workingDir"`
	Stage          Stage        `json:"stage"`
	Paused         bool         `json:"paused"`
	VideoPath      string       `json:"-"`
	AudioPath      string       `json:"-"`
	Percent        float64      `json:"percent"`
	Status         string       `json:"status"`
	Err            error        `json:"-"`
	Error          string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     time.Time    `json:"finishedAt,omitzero"`
}

// Update is one progress notification for a task
type Update struct {
	TaskID   uint64             `json:"taskId"`
	Stage    Stage              `json:"stage"`
	Percent  float64            `json:"percent"`
	Status   string             `json:"status"`
	Kind     string             `json:"kind,omitempty"`
	Snapshot *progress.Snapshot `json:"snapshot,omitempty"`
	Paused   bool               `json:"paused"`
	Error    string             `json:"error,omitempty"`
	Path     string             `json:"path,omitempty"`
}

// Reporter receives task updates
type Reporter interface {
	Report(Update)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Update)

func (f ReporterFunc) Report(u Update) {
	f(u)
}

type tee []Reporter

func (t tee) Report(u Update) {
	for _, r := range t {
		r.Report(u)
	}
}

// Tee fans updates out to every non-nil reporter
func Tee(reporters ...Reporter) Reporter {
	var out tee
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type discard struct{}

func (discard) Report(Update) {}
