package reporter

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// LogReporter writes job progress events as plain text lines, matching
// the timestamped single-line format of internal/logging.
type LogReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLogReporter builds a LogReporter that writes to w.
func NewLogReporter(w io.Writer) *LogReporter {
	return &LogReporter{w: w}
}

func (r *LogReporter) log(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(r.w, "%s [%s] %s\n", timestamp, level, msg)
}

func (r *LogReporter) JobStarted(e JobStarted) {
	r.log("INFO", "job started: input=%s output=%s nodes=%d", e.InputFile, e.OutputFile, e.NodeCount)
}

func (r *LogReporter) SegmentResult(e SegmentResult) {
	r.log("INFO", "segmented into %d chunks (sidecar=%t)", e.ChunkCount, e.HasSidecar)
}

func (r *LogReporter) DispatchProgress(e DispatchProgress) {
	r.log("INFO", "dispatch progress: %d/%d complete, %d failed attempts", e.CompletedChunks, e.TotalChunks, e.FailedAttempts)
}

func (r *LogReporter) MuxResult(e MuxResult) {
	r.log("INFO", "mux complete: backend=%s output=%s", e.Backend, e.OutputFile)
}

func (r *LogReporter) JobFailed(e JobFailed) {
	r.log("ERROR", "job failed at %s: %s", e.Stage, e.Message)
}
