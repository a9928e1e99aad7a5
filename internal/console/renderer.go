// Package console renders download updates to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"ytdownloader/internal/downloader"
)

const barWidth = 30

// Renderer is a downloader.Reporter that draws a progress bar per task.
// Interactive renderers redraw one line in place; otherwise a line is
// printed every 10%.
type Renderer struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	bar         progress.Model

	stage   lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	dimmed  lipgloss.Style
	label   lipgloss.Style
	current map[lineKey]*line
}

// Task ids are only unique per downloader, so lines are keyed by lane too
type lineKey struct {
	lane string
	task uint64
}

type line struct {
	stage  downloader.Stage
	bucket int
	drawn  bool
}

// New creates a renderer writing to out
func New(out io.Writer, interactive bool) *Renderer {
	style := lipgloss.NewRenderer(out)

	return &Renderer{
		out:         out,
		interactive: interactive,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
		stage:       style.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		done:        style.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		failed:      style.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		dimmed:      style.NewStyle().Foreground(lipgloss.Color("241")),
		label:       style.NewStyle().Foreground(lipgloss.Color("63")),
		current:     make(map[lineKey]*line),
	}
}

// Report implements downloader.Reporter
func (r *Renderer) Report(u downloader.Update) {
	r.report("", u)
}

// Lane returns a reporter whose lines are labelled with name. Use one lane
// per downloader when several share the terminal.
func (r *Renderer) Lane(name string) downloader.Reporter {
	return downloader.ReporterFunc(func(u downloader.Update) {
		r.report(name, u)
	})
}

func (r *Renderer) report(lane string, u downloader.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lineKey{lane: lane, task: u.TaskID}
	l, ok := r.current[key]
	if !ok {
		l = &line{stage: -1, bucket: -1}
		r.current[key] = l
	}

	prefix := ""
	if lane != "" {
		prefix = r.label.Render("["+lane+"]") + " "
	}

	if u.Stage.Terminal() {
		r.endLine(l)
		fmt.Fprintln(r.out, prefix+r.summary(u))
		delete(r.current, key)
		return
	}

	if u.Stage != l.stage {
		r.endLine(l)
		l.stage = u.Stage
		l.bucket = -1
		fmt.Fprintln(r.out, prefix+r.stage.Render(stageTitle(u.Stage)))
	}

	if u.Snapshot == nil && u.Stage != downloader.StageMerging && !u.Paused {
		return
	}

	text := prefix + r.bar.ViewAs(u.Percent/100) + " " + fmt.Sprintf("%5.1f%%", u.Percent) + " " + r.dimmed.Render(u.Status)

	if r.interactive {
		fmt.Fprint(r.out, "\r\033[K"+text)
		l.drawn = true
		return
	}

	bucket := int(u.Percent) / 10
	if bucket == l.bucket && !u.Paused {
		return
	}
	l.bucket = bucket
	fmt.Fprintln(r.out, text)
}

func (r *Renderer) endLine(l *line) {
	if l.drawn {
		fmt.Fprintln(r.out)
		l.drawn = false
	}
}

func (r *Renderer) summary(u downloader.Update) string {
	switch u.Stage {
	case downloader.StageCompleted:
		msg := "Download complete"
		if u.Path != "" {
			msg += ": " + u.Path
		}
		return r.done.Render(msg)
	case downloader.StageCancelled:
		return r.failed.Render("Download cancelled")
	default:
		// Status carries the user-facing message of the failure
		if u.Status != "" {
			return r.failed.Render(u.Status)
		}
		return r.failed.Render("Download failed")
	}
}

func stageTitle(stage downloader.Stage) string {
	switch stage {
	case downloader.StageWaiting:
		return "Preparing"
	case downloader.StageFetchingVideo:
		return "Downloading video"
	case downloader.StageFetchingAudio:
		return "Downloading audio"
	case downloader.StageMerging:
		return "Merging"
	default:
		return strings.ReplaceAll(stage.String(), "_", " ")
	}
}
