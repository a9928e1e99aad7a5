package progress

// Kind identifies which transfer of a task a progress event belongs to
type Kind int

const (
	KindMain Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Event statuses reported by stream fetchers
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusError       = "error"
)

// Event is one raw progress report emitted by a stream fetcher.
// Zero values mean the field was not reported.
type Event struct {
	Status             string
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	FragmentIndex      int
	FragmentCount      int
	Speed              float64 // bytes per second
	ETA                float64 // seconds
	Filename           string
}

// Snapshot is the normalized view of an Event
type Snapshot struct {
	Fraction       float64 `json:"fraction"`
	HasFraction    bool    `json:"hasFraction"`
	Placeholder    bool    `json:"placeholder"`
	Downloaded     int64   `json:"downloaded"`
	Total          int64   `json:"total"`
	TotalEstimated bool    `json:"totalEstimated"`
	Speed          float64 `json:"speed"`
	ETA            float64 `json:"eta"`
}
