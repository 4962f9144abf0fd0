// Command client is the ferris-swarm dispatcher CLI: it splits one input
// video into chunks, fans them out to a pool of node connections, and
// remuxes the encoded results back into one output file (spec.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/master-of-zen/ferris-swarm/internal/dispatcher"
	"github.com/master-of-zen/ferris-swarm/internal/jobpath"
	"github.com/master-of-zen/ferris-swarm/internal/logging"
	"github.com/master-of-zen/ferris-swarm/internal/muxer"
	"github.com/master-of-zen/ferris-swarm/internal/reporter"
	"github.com/master-of-zen/ferris-swarm/internal/segmenter"
	"github.com/master-of-zen/ferris-swarm/internal/settingsfile"
	"github.com/master-of-zen/ferris-swarm/internal/swarm"
	"github.com/master-of-zen/ferris-swarm/internal/util"
)

const appName = "ferris-swarm-client"

// stringSliceFlag collects one value per occurrence of a repeatable flag.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return strings.Join(*s, " ") }

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `%s - dispatch a video encode across a node fleet

Usage:
  %s --input-file PATH --output-file PATH [options]

Required:
  --input-file <PATH>     Source video file
  --output-file <PATH>    Destination file

Options:
  --config-file <PATH>    TOML settings file (sections [client]/[processing])
  --nodes <a,b,c>         Comma-separated node RPC base URLs
  --slots <2,4,2>         Comma-separated per-node slot counts, same length as --nodes
  --encoder-params <...>  Encoder CLI arguments, whitespace-split; repeatable
  --temp-dir <PATH>       Scratch directory base (default: system temp dir)
  --segment-duration <N>  Target segment length in seconds (default: 30)
  --concatenator <MODE>   "concat" (ffmpeg concat demuxer) or "merge" (mkvmerge)
  --log-dir <PATH>        Log directory (default: %s)
  --verbose               Enable debug-level logging
  --no-log                Disable log file creation
`, appName, appName, logging.DefaultLogDir())
	}

	var (
		inputFile       string
		outputFile      string
		configFile      string
		nodesArg        string
		slotsArg        string
		tempDirArg      string
		segmentDuration float64
		concatenatorArg string
		logDir          string
		verbose         bool
		noLog           bool
	)
	var encoderParamsArg stringSliceFlag

	fs.StringVar(&inputFile, "input-file", "", "Source video file")
	fs.StringVar(&outputFile, "output-file", "", "Destination file")
	fs.StringVar(&configFile, "config-file", "", "TOML settings file")
	fs.StringVar(&nodesArg, "nodes", "", "Comma-separated node RPC base URLs")
	fs.StringVar(&slotsArg, "slots", "", "Comma-separated per-node slot counts")
	fs.Var(&encoderParamsArg, "encoder-params", "Encoder CLI arguments (repeatable)")
	fs.StringVar(&tempDirArg, "temp-dir", "", "Scratch directory base")
	fs.Float64Var(&segmentDuration, "segment-duration", 0, "Target segment length in seconds")
	fs.StringVar(&concatenatorArg, "concatenator", "", "concat or merge")
	fs.StringVar(&logDir, "log-dir", "", "Log directory")
	fs.BoolVar(&verbose, "verbose", false, "Enable debug-level logging")
	fs.BoolVar(&noLog, "no-log", false, "Disable log file creation")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if inputFile == "" {
		return fmt.Errorf("--input-file is required")
	}
	if outputFile == "" {
		return fmt.Errorf("--output-file is required")
	}

	inputFile, err := filepath.Abs(inputFile)
	if err != nil {
		return fmt.Errorf("invalid input file: %w", err)
	}
	if _, err := os.Stat(inputFile); err != nil {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}
	outputFile, err = filepath.Abs(outputFile)
	if err != nil {
		return fmt.Errorf("invalid output file: %w", err)
	}

	settings, err := settingsfile.Load(configFile)
	if err != nil {
		return err
	}

	nodes, slots, err := resolveNodesAndSlots(nodesArg, slotsArg, settings.Client)
	if err != nil {
		return err
	}

	encoderParams := resolveEncoderParams(encoderParamsArg, settings.Client.EncoderParams)

	tempDirBase := tempDirArg
	if tempDirBase == "" {
		tempDirBase = settings.Client.TempDir
	}
	if tempDirBase == "" {
		tempDirBase = os.TempDir()
	}

	if segmentDuration <= 0 {
		segmentDuration = settings.Client.SegmentDuration
	}

	backend, err := resolveBackend(concatenatorArg, settings.Processing.Concatenator)
	if err != nil {
		return err
	}

	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	logger, err := logging.Setup(logDir, verbose, noLog, os.Args, logging.Job{
		Hash:       jobpath.Hash(inputFile, outputFile),
		InputFile:  inputFile,
		OutputFile: outputFile,
		NodeCount:  len(nodes),
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	termRep := reporter.NewTerminalReporterVerbose(verbose)
	var rep reporter.Reporter = termRep
	if logger != nil {
		logRep := reporter.NewLogReporter(logger.Writer())
		rep = reporter.NewCompositeReporter(termRep, logRep)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rep.JobStarted(reporter.JobStarted{
		InputFile:  inputFile,
		OutputFile: outputFile,
		NodeCount:  len(nodes),
	})

	err = dispatchJob(ctx, jobParams{
		inputFile:       inputFile,
		outputFile:      outputFile,
		nodes:           nodes,
		slots:           slots,
		encoderParams:   encoderParams,
		tempDirBase:     tempDirBase,
		segmentDuration: segmentDuration,
		backend:         backend,
		logger:          logger,
		rep:             rep,
	})
	if err != nil {
		rep.JobFailed(reporter.JobFailed{Stage: "dispatch", Message: err.Error()})
		return err
	}
	return nil
}

type jobParams struct {
	inputFile       string
	outputFile      string
	nodes           []string
	slots           []int
	encoderParams   []string
	tempDirBase     string
	segmentDuration float64
	backend         muxer.Backend
	logger          *logging.Logger
	rep             reporter.Reporter
}

// dispatchJob runs the segment -> dispatch -> mux pipeline, always cleaning
// up its scratch directory on the way out (spec.md §6 "scratch is deleted
// on both paths").
func dispatchJob(ctx context.Context, p jobParams) error {
	if err := util.EnsureDirectoryWritable(p.tempDirBase); err != nil {
		if mkErr := os.MkdirAll(p.tempDirBase, 0755); mkErr != nil {
			return fmt.Errorf("scratch base directory %s is not usable: %w", p.tempDirBase, err)
		}
	}

	layout := jobpath.New(p.tempDirBase, p.inputFile, p.outputFile)
	if err := layout.Create(); err != nil {
		return err
	}
	defer func() { _ = layout.Cleanup() }()

	util.CheckDiskSpace(layout.JobDir, p.logger.Info)

	result, err := segmenter.Segment(p.inputFile, p.segmentDuration, layout.SegmentsDir)
	if err != nil {
		return fmt.Errorf("segmentation failed: %w", err)
	}

	if len(result.ChunkPaths) == 0 {
		p.logger.Info("segmenter produced zero chunks for %s, nothing to dispatch", p.inputFile)
		p.rep.SegmentResult(reporter.SegmentResult{ChunkCount: 0, SegmentSecs: p.segmentDuration})
		return nil
	}

	p.rep.SegmentResult(reporter.SegmentResult{
		ChunkCount:  len(result.ChunkPaths),
		HasSidecar:  result.SidecarPath != "",
		SegmentSecs: p.segmentDuration,
	})

	chunks := make([]swarm.Chunk, len(result.ChunkPaths))
	for i, path := range result.ChunkPaths {
		chunks[i] = swarm.Chunk{
			Index:             i,
			SourcePath:        path,
			EncoderParameters: p.encoderParams,
		}
	}

	nodeConns, err := dispatcher.InitializeNodeConnections(p.nodes, p.slots)
	if err != nil {
		return fmt.Errorf("failed to initialize node connections: %w", err)
	}

	disp := dispatcher.New(nodeConns, chunks, dispatcher.Config{
		EncodedChunksDir: layout.EncodedChunksDir,
		Logger:           p.logger,
		OnProgress: func(completed, total, failedAttempts int) {
			p.rep.DispatchProgress(reporter.DispatchProgress{
				CompletedChunks: completed,
				TotalChunks:     total,
				FailedAttempts:  failedAttempts,
			})
		},
	})

	completed, err := disp.Run(ctx)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	sort.Slice(completed, func(i, j int) bool { return completed[i].Index < completed[j].Index })
	encodedPaths := make([]string, len(completed))
	for i, c := range completed {
		encodedPaths[i] = c.EncodedPath
	}

	if err := os.MkdirAll(filepath.Dir(p.outputFile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := muxer.Mux(p.backend, encodedPaths, result.SidecarPath, p.outputFile, layout.JobDir, len(chunks)); err != nil {
		return fmt.Errorf("muxing failed: %w", err)
	}

	p.rep.MuxResult(reporter.MuxResult{OutputFile: p.outputFile, Backend: string(p.backend)})
	return nil
}

// resolveNodesAndSlots merges CLI overrides with the settings file. If
// --slots is omitted, [client].slots is used, and if that is empty too every
// node gets 1 slot. The resulting slots must match nodes in length (spec.md §6).
func resolveNodesAndSlots(nodesArg, slotsArg string, cfg settingsfile.ClientSettings) ([]string, []int, error) {
	var nodes []string
	if nodesArg != "" {
		for _, n := range strings.Split(nodesArg, ",") {
			if n = strings.TrimSpace(n); n != "" {
				nodes = append(nodes, n)
			}
		}
	} else {
		nodes = cfg.Nodes
	}
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("no node addresses configured: pass --nodes or set [client].nodes")
	}

	var slots []int
	if slotsArg != "" {
		for _, s := range strings.Split(slotsArg, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --slots value %q: %w", s, err)
			}
			slots = append(slots, n)
		}
	} else if len(cfg.Slots) > 0 {
		slots = cfg.Slots
	} else {
		slots = make([]int, len(nodes))
		for i := range slots {
			slots[i] = 1
		}
	}

	if len(slots) != len(nodes) {
		return nil, nil, fmt.Errorf("--slots has %d value(s) but %d node(s) were given", len(slots), len(nodes))
	}
	return nodes, slots, nil
}

// resolveEncoderParams whitespace-splits each repeatable --encoder-params
// value, falling back to the settings file, and appends an overwrite flag
// if the caller didn't already specify one (spec.md §6).
func resolveEncoderParams(cliValues stringSliceFlag, fileValues []string) []string {
	var params []string
	if len(cliValues) > 0 {
		for _, v := range cliValues {
			params = append(params, strings.Fields(v)...)
		}
	} else {
		params = append(params, fileValues...)
	}

	hasOverwriteFlag := false
	for _, p := range params {
		if p == "-y" || p == "-n" {
			hasOverwriteFlag = true
			break
		}
	}
	if !hasOverwriteFlag {
		params = append(params, "-y")
	}
	return params
}

// resolveBackend maps the CLI's concat/merge vocabulary and the settings
// file's ffmpeg/mkvmerge vocabulary onto muxer.Backend.
func resolveBackend(cliValue, fileValue string) (muxer.Backend, error) {
	value := cliValue
	if value == "" {
		switch strings.ToLower(fileValue) {
		case "mkvmerge":
			value = "merge"
		case "ffmpeg", "":
			value = "concat"
		default:
			return "", fmt.Errorf("unknown processing.concatenator %q", fileValue)
		}
	}

	switch value {
	case "concat":
		return muxer.BackendConcat, nil
	case "merge":
		return muxer.BackendMerge, nil
	default:
		return "", fmt.Errorf("--concatenator must be %q or %q, got %q", "concat", "merge", value)
	}
}
