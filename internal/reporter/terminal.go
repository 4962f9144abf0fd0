package reporter

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// TerminalReporter prints human-friendly, colorized job progress,
// driving a live progress bar across the dispatch stage.
type TerminalReporter struct {
	mu       sync.Mutex
	progress *progressbar.ProgressBar
	verbose  bool

	cyan    *color.Color
	green   *color.Color
	yellow  *color.Color
	red     *color.Color
	magenta *color.Color
	bold    *color.Color
}

// NewTerminalReporterVerbose builds a TerminalReporter; verbose adds the
// running count of failed attempts alongside the progress bar.
func NewTerminalReporterVerbose(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
	}
}

func (r *TerminalReporter) JobStarted(e JobStarted) {
	fmt.Println()
	_, _ = r.cyan.Println("JOB")
	r.printLabel("Input:", e.InputFile)
	r.printLabel("Output:", e.OutputFile)
	r.printLabel("Nodes:", fmt.Sprintf("%d", e.NodeCount))
}

func (r *TerminalReporter) SegmentResult(e SegmentResult) {
	fmt.Println()
	_, _ = r.cyan.Println("SEGMENT")
	r.printLabel("Chunks:", fmt.Sprintf("%d", e.ChunkCount))
	r.printLabel("Sidecar:", fmt.Sprintf("%t", e.HasSidecar))

	r.mu.Lock()
	r.progress = progressbar.NewOptions(e.ChunkCount,
		progressbar.OptionSetDescription("dispatching"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	r.mu.Unlock()
}

func (r *TerminalReporter) DispatchProgress(e DispatchProgress) {
	r.mu.Lock()
	bar := r.progress
	r.mu.Unlock()
	if bar != nil {
		_ = bar.Set(e.CompletedChunks)
	}
	if e.FailedAttempts > 0 && r.verbose {
		_, _ = r.yellow.Printf("  retry: %d failed attempt(s) so far\n", e.FailedAttempts)
	}
}

func (r *TerminalReporter) MuxResult(e MuxResult) {
	r.mu.Lock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.mu.Unlock()

	fmt.Println()
	_, _ = r.cyan.Println("MUX")
	r.printLabel("Backend:", e.Backend)
	_, _ = r.green.Printf("  done: %s\n", e.OutputFile)
}

func (r *TerminalReporter) JobFailed(e JobFailed) {
	r.mu.Lock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.mu.Unlock()

	fmt.Println()
	_, _ = r.red.Printf("FAILED at %s: %s\n", e.Stage, e.Message)
}

const labelWidth = 10

func (r *TerminalReporter) printLabel(label, value string) {
	fmt.Printf("  %s %s\n", r.bold.Sprintf("%-*s", labelWidth, label), value)
}
