package models

// Backend names for the stream/metadata adapters
const (
	BackendYtdlp  = "ytdlp"
	BackendNative = "native"
)

// Config represents the application configuration
type Config struct {
	DownloadPath           string `json:"downloadPath" envconfig:"DOWNLOAD_PATH"`
	DefaultQuality         string `json:"defaultQuality" envconfig:"DEFAULT_QUALITY"`
	MaxConcurrentDownloads int    `json:"maxConcurrentDownloads" envconfig:"MAX_CONCURRENT_DOWNLOADS"`
	Proxy                  string `json:"proxy" envconfig:"PROXY"`
	UserAgent              string `json:"userAgent" envconfig:"USER_AGENT"`
	FFmpegPath             string `json:"ffmpegPath" envconfig:"FFMPEG_PATH"`
	YtdlpPath              string `json:"ytdlpPath" envconfig:"YTDLP_PATH"`
	AutoUpdateYtdlp        bool   `json:"autoUpdateYtdlp" envconfig:"AUTO_UPDATE_YTDLP"`
	Backend                string `json:"backend" envconfig:"BACKEND"`
	CachePath              string `json:"cachePath" envconfig:"CACHE_PATH"`
	SessionMaxAgeHours     int    `json:"sessionMaxAgeHours" envconfig:"SESSION_MAX_AGE_HOURS"`
	ServerPort             int    `json:"serverPort" envconfig:"SERVER_PORT"`
	RateLimitKBps          int    `json:"rateLimitKBps" envconfig:"RATE_LIMIT_KBPS"`
	ResolveTimeoutSeconds  int    `json:"resolveTimeoutSeconds" envconfig:"RESOLVE_TIMEOUT_SECONDS"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DownloadPath:           "",
		DefaultQuality:         "best",
		MaxConcurrentDownloads: 3,
		Proxy:                  "",
		UserAgent:              "",
		FFmpegPath:             "",
		YtdlpPath:              "",
		AutoUpdateYtdlp:        false,
		Backend:                BackendYtdlp,
		CachePath:              "",
		SessionMaxAgeHours:     24,
		ServerPort:             9797,
		RateLimitKBps:          0,
		ResolveTimeoutSeconds:  20,
	}
}
