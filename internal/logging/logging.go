// Package logging provides the client CLI's per-run file logger. Unlike
// a single-host encode, a client run drives a fleet of node connections
// against one job, so the logger is keyed by that job: the log file name
// and startup banner carry the job's scratch-directory hash
// (internal/jobpath.Hash) and its node pool, not just a timestamp. It
// implements the small Logger interface internal/dispatcher expects
// (Info/Debug with printf-style args), so a client run's dispatch
// decisions land in the same file as its segmenting and muxing steps.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLogDir returns the default log directory following XDG Base Directory Spec.
// Uses $XDG_STATE_HOME/ferris-swarm/logs, defaulting to ~/.local/state/ferris-swarm/logs.
func DefaultLogDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "ferris-swarm", "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return filepath.Join(".", "ferris-swarm", "logs")
	}
	return filepath.Join(home, ".local", "state", "ferris-swarm", "logs")
}

// Job identifies the dispatch job a log file belongs to, so concurrent
// client runs against different jobs never share a log file and a run's
// job can be found from its filename alone (spec.md §6).
type Job struct {
	Hash       string
	InputFile  string
	OutputFile string
	NodeCount  int
}

// level represents the logging level.
type level int

const (
	levelInfo level = iota
	levelDebug
)

// Logger wraps the standard logger with level filtering and file output.
type Logger struct {
	level    level
	logger   *log.Logger
	file     *os.File
	filePath string
}

// Setup creates a new logger that writes to a job-keyed log file.
// Returns nil if logging is disabled (noLog=true).
// cmdArgs should be os.Args to log the command that was run.
func Setup(logDir string, verbose, noLog bool, cmdArgs []string, job Job) (*Logger, error) {
	if noLog {
		return nil, nil
	}

	// Create log directory
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	// Generate a filename keyed by both the job hash and a timestamp: the
	// hash lets `grep` find every run of the same input/output pair, the
	// timestamp keeps repeated runs of that same job from colliding.
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("ferris_swarm_client_%s_%s.log", job.Hash, timestamp)
	filePath := filepath.Join(logDir, filename)

	// Open log file
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", filePath, err)
	}

	level := levelInfo
	if verbose {
		level = levelDebug
	}

	logger := log.New(file, "", 0) // No flags - we add timestamps manually for consistent format

	l := &Logger{
		level:    level,
		logger:   logger,
		file:     file,
		filePath: filePath,
	}

	// Log startup
	l.Info("Command: %s", strings.Join(cmdArgs, " "))
	l.Info("job %s: dispatching %s -> %s across %d node(s)", job.Hash, job.InputFile, job.OutputFile, job.NodeCount)
	if verbose {
		l.Info("Debug level logging enabled")
	}
	l.Info("Log file: %s", filePath)

	return l, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...any) {
	if l == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Printf("%s [INFO] "+format, append([]any{timestamp}, args...)...)
}

// Debug logs a debug-level message (only if verbose mode is enabled).
func (l *Logger) Debug(format string, args ...any) {
	if l == nil || l.level < levelDebug {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Printf("%s [DEBUG] "+format, append([]any{timestamp}, args...)...)
}

// Writer returns an io.Writer that writes to the log file.
// Useful for redirecting other loggers or capturing output.
func (l *Logger) Writer() io.Writer {
	if l == nil || l.file == nil {
		return io.Discard
	}
	return l.file
}
