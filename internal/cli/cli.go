package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"

	"ytdownloader/internal/format"
	"ytdownloader/pkg/models"
)

var ErrNoURL = errors.New("no video URL given")

// CommandType represents the type of CLI command
type CommandType int

const (
	CommandHelp CommandType = iota
	CommandVersion
	CommandDownload
	CommandFormats
	CommandSessions
	CommandServe
	CommandUpdateYtdlp
)

// SessionAction selects what the sessions command does
type SessionAction int

const (
	SessionsList SessionAction = iota
	SessionsExpire
	SessionsDelete
	SessionsClear
)

// Command represents a parsed CLI command
type Command struct {
	Type CommandType
	URLs []string

	// Download flags; empty values fall back to the configuration
	Tier        *format.Tier
	OutputDir   string
	Backend     string
	Concurrency int

	// Sessions flags
	Action    SessionAction
	OlderThan time.Duration
	SessionID string

	Port      int
	CheckOnly bool
	Verbose   bool
}

// String returns a string representation of the command
func (c *Command) String() string {
	switch c.Type {
	case CommandHelp:
		return "help"
	case CommandVersion:
		return "version"
	case CommandDownload:
		quality := "default"
		if c.Tier != nil {
			quality = c.Tier.String()
		}
		return fmt.Sprintf("download (%d urls, quality: %s)", len(c.URLs), quality)
	case CommandFormats:
		if len(c.URLs) > 0 {
			return fmt.Sprintf("formats (url: %s)", c.URLs[0])
		}
		return "formats"
	case CommandSessions:
		switch c.Action {
		case SessionsExpire:
			return fmt.Sprintf("sessions (expire older than %s)", str2duration.String(c.OlderThan))
		case SessionsDelete:
			return fmt.Sprintf("sessions (delete %s)", c.SessionID)
		case SessionsClear:
			return "sessions (clear)"
		default:
			return "sessions"
		}
	case CommandServe:
		if c.Port != 0 {
			return fmt.Sprintf("serve (port: %d)", c.Port)
		}
		return "serve"
	case CommandUpdateYtdlp:
		if c.CheckOnly {
			return "update-ytdlp (check only)"
		}
		return "update-ytdlp"
	default:
		return "unknown"
	}
}

// CLI represents the command-line interface
type CLI struct {
	version string
}

// NewCLI creates a new CLI instance
func NewCLI(version string) *CLI {
	return &CLI{
		version: version,
	}
}

// ParseCommand parses command-line arguments and returns a Command
func (c *CLI) ParseCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command specified")
	}

	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return &Command{Type: CommandHelp}, nil
	}

	if args[0] == "-v" || args[0] == "--version" || args[0] == "version" {
		return &Command{Type: CommandVersion}, nil
	}

	switch args[0] {
	case "download", "dl":
		return c.parseDownloadCommand(args[1:])
	case "formats":
		return c.parseFormatsCommand(args[1:])
	case "sessions":
		return c.parseSessionsCommand(args[1:])
	case "serve":
		return c.parseServeCommand(args[1:])
	case "update-ytdlp":
		return c.parseUpdateCommand(args[1:])
	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *CLI) parseDownloadCommand(args []string) (*Command, error) {
	fs := newFlagSet("download")
	quality := fs.String("q", "", "Quality: best, audio, or a height such as 720p")
	output := fs.String("o", "", "Output directory")
	backend := fs.String("backend", "", "Backend: ytdlp or native")
	concurrency := fs.Int("j", 0, "Parallel downloads when several URLs are given")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		return nil, ErrNoURL
	}

	cmd := &Command{
		Type:        CommandDownload,
		URLs:        fs.Args(),
		OutputDir:   *output,
		Backend:     strings.ToLower(*backend),
		Concurrency: *concurrency,
		Verbose:     *verbose,
	}

	if *quality != "" {
		tier, err := format.ParseTier(*quality)
		if err != nil {
			return nil, err
		}
		cmd.Tier = &tier
	}

	if cmd.Backend != "" && cmd.Backend != models.BackendYtdlp && cmd.Backend != models.BackendNative {
		return nil, fmt.Errorf("unknown backend: %s", *backend)
	}
	if cmd.Concurrency < 0 {
		return nil, fmt.Errorf("invalid concurrency: %d", cmd.Concurrency)
	}

	return cmd, nil
}

func (c *CLI) parseFormatsCommand(args []string) (*Command, error) {
	fs := newFlagSet("formats")
	backend := fs.String("backend", "", "Backend: ytdlp or native")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, ErrNoURL
	}

	return &Command{
		Type:    CommandFormats,
		URLs:    fs.Args(),
		Backend: strings.ToLower(*backend),
		Verbose: *verbose,
	}, nil
}

func (c *CLI) parseSessionsCommand(args []string) (*Command, error) {
	fs := newFlagSet("sessions")
	olderThan := fs.String("older-than", "", "Remove sessions older than this age, e.g. 12h or 7d")
	remove := fs.String("delete", "", "Remove the session with this ID")
	clearAll := fs.Bool("clear", false, "Remove every cached file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cmd := &Command{Type: CommandSessions, Action: SessionsList}

	set := 0
	if *olderThan != "" {
		age, err := str2duration.ParseDuration(*olderThan)
		if err != nil {
			return nil, fmt.Errorf("invalid -older-than: %w", err)
		}
		if age < 0 {
			return nil, fmt.Errorf("invalid -older-than: %s", *olderThan)
		}
		cmd.Action = SessionsExpire
		cmd.OlderThan = age
		set++
	}
	if *remove != "" {
		cmd.Action = SessionsDelete
		cmd.SessionID = *remove
		set++
	}
	if *clearAll {
		cmd.Action = SessionsClear
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("-older-than, -delete and -clear are mutually exclusive")
	}

	return cmd, nil
}

func (c *CLI) parseServeCommand(args []string) (*Command, error) {
	fs := newFlagSet("serve")
	port := fs.Int("port", 0, "Server port (default from config)")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *port < 0 || *port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", *port)
	}

	return &Command{
		Type:    CommandServe,
		Port:    *port,
		Verbose: *verbose,
	}, nil
}

func (c *CLI) parseUpdateCommand(args []string) (*Command, error) {
	fs := newFlagSet("update-ytdlp")
	checkOnly := fs.Bool("check", false, "Only check for updates without installing")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &Command{
		Type:      CommandUpdateYtdlp,
		CheckOnly: *checkOnly,
	}, nil
}

// PrintHelp prints the help message
func (c *CLI) PrintHelp(w io.Writer) {
	help := `ytdl - YouTube video downloader

Usage:
  ytdl [command] [flags]

Available Commands:
  download      Download one or more videos
  formats       List the available qualities of a video
  sessions      List or clean up download sessions
  serve         Start the HTTP API server
  update-ytdlp  Install or update the managed yt-dlp binary
  version       Print version information
  help          Print this help message

Download Flags:
  -q string        Quality: best, audio, or a height such as 720p
  -o string        Output directory
  -backend string  ytdlp (default) or native
  -j int           Parallel downloads when several URLs are given
  -verbose         Enable debug logging

Sessions Flags:
  -older-than string  Remove sessions older than this age, e.g. 12h or 7d
  -delete string      Remove the session with this ID
  -clear              Remove every cached file

Serve Flags:
  -port int   Server port (default from config)

Update Flags:
  -check   Only check for updates without installing

Environment:
  YTDL_* variables override the config file, e.g. YTDL_PROXY or YTDL_BACKEND

Examples:
  ytdl download https://www.youtube.com/watch?v=dQw4w9WgXcQ
  ytdl download -q 720p -o ~/Videos https://youtu.be/dQw4w9WgXcQ
  ytdl download -q audio -j 2 URL1 URL2 URL3
  ytdl formats https://youtu.be/dQw4w9WgXcQ
  ytdl sessions -older-than 7d
  ytdl serve -port 9797
  ytdl update-ytdlp -check
`
	fmt.Fprint(w, help)
}

// PrintVersion prints the version information
func (c *CLI) PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "ytdl version %s\n", c.version)
}

// Run handles the commands that need no services and reports whether the
// caller should go on to execute cmd
func (c *CLI) Run(args []string) (*Command, int) {
	cmd, err := c.ParseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		c.PrintHelp(os.Stderr)
		return nil, 1
	}

	switch cmd.Type {
	case CommandHelp:
		c.PrintHelp(os.Stdout)
		return nil, 0
	case CommandVersion:
		c.PrintVersion(os.Stdout)
		return nil, 0
	default:
		return cmd, 0
	}
}
