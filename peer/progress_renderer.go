package peer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ANSI color codes for terminal output
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Bold   = "\033[1m"
)

// ProgressRenderer draws a single-line progress bar for a download batch
type ProgressRenderer struct {
	tracker     *Tracker
	out         io.Writer
	label       string
	stopChan    chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	refreshRate time.Duration
	useColors   bool
	width       int
}

// NewProgressRenderer creates a renderer that writes to out. The label is
// usually the sender's alias.
func NewProgressRenderer(tracker *Tracker, out io.Writer, label string, useColors bool) *ProgressRenderer {
	return &ProgressRenderer{
		tracker:     tracker,
		out:         out,
		label:       label,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
		refreshRate: 200 * time.Millisecond,
		useColors:   useColors,
		width:       40,
	}
}

func (pr *ProgressRenderer) SetRefreshRate(rate time.Duration) {
	pr.refreshRate = rate
}

// Start runs the render loop until Stop or StopAndWait is called.
func (pr *ProgressRenderer) Start() {
	defer close(pr.done)
	pr.Render()

	ticker := time.NewTicker(pr.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pr.tracker.UpdateSpeed()
			pr.Render()
		case <-pr.stopChan:
			return
		}
	}
}

// Stop signals the renderer to stop without waiting
func (pr *ProgressRenderer) Stop() {
	pr.stopOnce.Do(func() { close(pr.stopChan) })
}

// StopAndWait stops the loop, waits for it to exit and draws the final line.
func (pr *ProgressRenderer) StopAndWait() {
	pr.Stop()
	<-pr.done
	pr.tracker.MarkComplete()
	if pr.tracker.IsComplete() {
		pr.RenderFinal()
	} else {
		pr.RenderError()
	}
}

// Render draws the current progress line
func (pr *ProgressRenderer) Render() {
	completed, total, speed, active, failed := pr.tracker.GetProgress()
	eta := pr.tracker.GetETA()
	done := pr.tracker.GetBytesDownloaded()
	size := pr.tracker.GetTotalSize()

	var percent float64
	if size > 0 {
		percent = float64(done) / float64(size) * 100
	}

	filled := int(float64(pr.width) * percent / 100)
	if filled > pr.width {
		filled = pr.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pr.width-filled)
	speedStr := formatBytes(speed)
	etaStr := formatETA(eta)

	var line string
	if pr.useColors {
		line = fmt.Sprintf("\r%s[%s]%s [%s]%s %.1f%% (%d/%d files) | %s/s | %d active | ETA: %s",
			Cyan, pr.label, Reset,
			Green+bar+Reset,
			Yellow, percent, completed, total,
			Blue+speedStr+Reset, active, etaStr,
		)
	} else {
		line = fmt.Sprintf("\r[%s] [%s] %.1f%% (%d/%d files) | %s/s | %d active | ETA: %s",
			pr.label, bar, percent, completed, total,
			speedStr, active, etaStr,
		)
	}

	if failed > 0 {
		if pr.useColors {
			line += Red + fmt.Sprintf(" | %d failed", failed) + Reset
		} else {
			line += fmt.Sprintf(" | %d failed", failed)
		}
	}

	fmt.Fprint(pr.out, line)
}

// RenderFinal draws the completed state
func (pr *ProgressRenderer) RenderFinal() {
	_, total, _, _, _ := pr.tracker.GetProgress()
	elapsed := pr.tracker.GetElapsedTime()

	fmt.Fprint(pr.out, "\r\033[K")

	if pr.useColors {
		fmt.Fprintf(pr.out, "%s[%s]%s [%s]%s 100%% (%d/%d files)%s | Completed in %s\n",
			Cyan, pr.label, Reset,
			Green+strings.Repeat("█", pr.width)+Reset,
			Green, total, total, Reset,
			formatDuration(elapsed),
		)
		return
	}
	fmt.Fprintf(pr.out, "[%s] [%s] 100%% (%d/%d files) | Completed in %s\n",
		pr.label, strings.Repeat("█", pr.width),
		total, total, formatDuration(elapsed),
	)
}

// RenderError draws the state of a batch with failures
func (pr *ProgressRenderer) RenderError() {
	fmt.Fprint(pr.out, "\r\033[K")

	completed, total, _, _, failed := pr.tracker.GetProgress()
	var percent float64
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
	}

	if pr.useColors {
		fmt.Fprintf(pr.out, "%s[%s]%s [%s] %.1f%% | %s%sDownload incomplete%s: %d/%d completed, %d failed\n",
			Cyan, pr.label, Reset,
			Red+"✗"+Reset,
			percent,
			Red, Bold, Reset, completed, total, failed,
		)
		return
	}
	fmt.Fprintf(pr.out, "[%s] [✗] %.1f%% | Download incomplete: %d/%d completed, %d failed\n",
		pr.label, percent, completed, total, failed,
	)
}

// formatBytes formats a byte count into a human-readable string
func formatBytes(bytes float64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%.1f B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", bytes/float64(div), "KMGTPE"[exp])
}

// FormatSize renders a declared file size for listings.
func FormatSize(size uint64) string {
	return formatBytes(float64(size))
}

func formatETA(eta time.Duration) string {
	if eta <= 0 {
		return "∞"
	}
	return formatDuration(eta)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", d/time.Minute, (d%time.Minute)/time.Second)
	}
	return fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute)
}

// IsTerminal reports whether f is attached to a terminal, which decides
// whether progress is drawn with colors.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
