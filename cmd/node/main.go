// Command node runs one ferris-swarm encoding worker: it serves the
// EncodeChunk RPC and, unless disabled, auto-discovers a constellation,
// registers with it, and keeps it heartbeated (spec.md §4.4, §4.5).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/discovery"
	"github.com/master-of-zen/ferris-swarm/internal/heartbeat"
	"github.com/master-of-zen/ferris-swarm/internal/hostprobe"
	"github.com/master-of-zen/ferris-swarm/internal/nodeservice"
	"github.com/master-of-zen/ferris-swarm/internal/settingsfile"
	"github.com/master-of-zen/ferris-swarm/internal/swarm"
	"github.com/master-of-zen/ferris-swarm/internal/util"
)

const (
	defaultEncoderBinary = "ffmpeg"

	// staleScratchMaxAgeHours bounds how long a received/encoded chunk
	// file can sit in scratch before the janitor reclaims it. Normal
	// requests clean up their own files; this only catches leftovers
	// from a crash mid-request.
	staleScratchMaxAgeHours = 6
	staleScratchSweepPeriod = time.Hour
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("ferris-swarm-node", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `ferris-swarm-node - serve the EncodeChunk RPC and join a constellation

Usage:
  ferris-swarm-node [options]

Options:
  --config-file <PATH>        TOML settings file (section [node])
  --address <HOST:PORT>       Bind address for the RPC server
  --temp-dir <PATH>           Scratch directory for received/encoded chunks
  --no-auto-register          Disable auto-registration with a constellation
  --constellation-url <URL>   Explicit constellation URL (skips discovery)
  --node-name <NAME>          Name reported to the constellation (default: hostname)
  --cpu-cores <N>             Override detected CPU core count
  --memory-gb <N>             Override detected memory in GB
  --max-chunks <N>            Override max concurrent chunks (default: cpu_cores/2)
  --encoders <a,b,c>          Override detected supported encoders
  --no-heartbeat              Disable the heartbeat loop (still registers once)
  --heartbeat-interval <SEC>  Heartbeat interval in seconds (default: 30)
  --verbose                   Enable debug-level logging

Environment variables CONSTELLATION_URL, NODE_NAME, NODE_CPU_CORES,
NODE_MEMORY_GB, NODE_MAX_CHUNKS, NODE_ENCODERS substitute for their flags.
`)
	}

	var (
		configFile        string
		addressArg        string
		tempDirArg        string
		noAutoRegister    bool
		constellationArg  string
		nodeNameArg       string
		cpuCoresArg       int
		memoryGBArg       float64
		maxChunksArg      int
		encodersArg       string
		noHeartbeat       bool
		heartbeatInterval int
		verbose           bool
	)
	fs.StringVar(&configFile, "config-file", "", "TOML settings file")
	fs.StringVar(&addressArg, "address", "", "Bind address for the RPC server")
	fs.StringVar(&tempDirArg, "temp-dir", "", "Scratch directory")
	fs.BoolVar(&noAutoRegister, "no-auto-register", false, "Disable auto-registration")
	fs.StringVar(&constellationArg, "constellation-url", "", "Explicit constellation URL")
	fs.StringVar(&nodeNameArg, "node-name", "", "Name reported to the constellation")
	fs.IntVar(&cpuCoresArg, "cpu-cores", 0, "Override detected CPU core count")
	fs.Float64Var(&memoryGBArg, "memory-gb", 0, "Override detected memory in GB")
	fs.IntVar(&maxChunksArg, "max-chunks", 0, "Override max concurrent chunks")
	fs.StringVar(&encodersArg, "encoders", "", "Override detected supported encoders")
	fs.BoolVar(&noHeartbeat, "no-heartbeat", false, "Disable the heartbeat loop")
	fs.IntVar(&heartbeatInterval, "heartbeat-interval", 0, "Heartbeat interval in seconds")
	fs.BoolVar(&verbose, "verbose", false, "Enable debug-level logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := settingsfile.Load(configFile)
	if err != nil {
		return err
	}
	cfg := settings.Node

	if addressArg != "" {
		cfg.Address = addressArg
	}
	if tempDirArg != "" {
		cfg.TempDir = tempDirArg
	}
	if v := envOrFlag("CONSTELLATION_URL", constellationArg); v != "" {
		cfg.ConstellationURL = v
	}
	if v := envOrFlag("NODE_NAME", nodeNameArg); v != "" {
		cfg.NodeName = v
	}
	if v := envOrFlagInt("NODE_CPU_CORES", cpuCoresArg); v != 0 {
		cfg.CPUCores = v
	}
	if v := envOrFlagFloat("NODE_MEMORY_GB", memoryGBArg); v != 0 {
		cfg.MemoryGB = v
	}
	if v := envOrFlagInt("NODE_MAX_CHUNKS", maxChunksArg); v != 0 {
		cfg.MaxChunks = v
	}
	if v := envOrFlag("NODE_ENCODERS", encodersArg); v != "" {
		cfg.Encoders = splitComma(v)
	}
	if noAutoRegister {
		cfg.AutoRegister = false
	}
	if noHeartbeat {
		cfg.Heartbeat = false
	}
	if heartbeatInterval > 0 {
		cfg.HeartbeatIntervalSecs = uint64(heartbeatInterval)
	}
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:50051"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.NodeName == "" {
		cfg.NodeName, _ = os.Hostname()
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create scratch directory %s: %w", cfg.TempDir, err)
	}

	caps := hostprobe.Detect(defaultEncoderBinary, swarm.NodeCapabilities{
		CPUCores:            cfg.CPUCores,
		MemoryGB:            cfg.MemoryGB,
		MaxConcurrentChunks: cfg.MaxChunks,
		SupportedEncoders:   cfg.Encoders,
	})
	log.WithFields(logrus.Fields{
		"cpu_cores":     caps.CPUCores,
		"memory_gb":     caps.MemoryGB,
		"max_chunks":    caps.MaxConcurrentChunks,
		"encoders":      caps.SupportedEncoders,
		"address":       cfg.Address,
		"node_name":     cfg.NodeName,
		"auto_register": cfg.AutoRegister,
		"heartbeat":     cfg.Heartbeat,
	}).Info("node starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	router := mux.NewRouter()
	handler := nodeservice.NewHandler(cfg.TempDir, defaultEncoderBinary, log)
	handler.RegisterRoutes(router)

	go sweepStaleScratch(ctx, cfg.TempDir, log)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.Address).Info("serving EncodeChunk RPC")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var heartbeatDone chan struct{}
	stopHeartbeat := make(chan struct{})
	if cfg.AutoRegister {
		constellationURL, err := discovery.Discover(ctx, cfg.ConstellationURL, log)
		if err != nil {
			return fmt.Errorf("failed to discover constellation: %w", err)
		}

		selfAddress := cfg.Address
		if !strings.Contains(selfAddress, "://") {
			selfAddress = "http://" + selfAddress
		}

		svc := heartbeat.New(heartbeat.Config{
			ConstellationURL: constellationURL,
			Address:          selfAddress,
			Capabilities:     caps,
			Interval:         time.Duration(cfg.HeartbeatIntervalSecs) * time.Second,
		}, log)

		if _, err := svc.Register(ctx); err != nil {
			return fmt.Errorf("failed to register with constellation %s: %w", constellationURL, err)
		}

		if cfg.Heartbeat {
			heartbeatDone = make(chan struct{})
			go func() {
				defer close(heartbeatDone)
				svc.Run(ctx, stopHeartbeat, nil)
			}()
		}
	}

	// The RPC server and the heartbeat loop are siblings: if either ends,
	// the other is aborted (spec.md §5).
	select {
	case err := <-serverErrCh:
		close(stopHeartbeat)
		cancel()
		if heartbeatDone != nil {
			<-heartbeatDone
		}
		return err
	case <-ctx.Done():
		close(stopHeartbeat)
		if heartbeatDone != nil {
			<-heartbeatDone
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}

// sweepStaleScratch periodically reclaims received/encoded chunk files
// left behind by a request that crashed before its own defer-based
// cleanup ran (internal/nodeservice normally removes both files itself
// on every call, success or failure).
func sweepStaleScratch(ctx context.Context, tempDir string, log *logrus.Logger) {
	ticker := time.NewTicker(staleScratchSweepPeriod)
	defer ticker.Stop()

	dirs := []string{
		filepath.Join(tempDir, nodeservice.ReceivedChunksDirName),
		filepath.Join(tempDir, nodeservice.EncodedChunksDirName),
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, dir := range dirs {
				n, err := util.CleanupStaleTempFiles(dir, "chunk_", staleScratchMaxAgeHours)
				if err != nil {
					log.WithError(err).WithField("dir", dir).Warn("stale scratch sweep failed")
					continue
				}
				if n > 0 {
					log.WithFields(logrus.Fields{"dir": dir, "removed": n}).Info("reclaimed stale scratch files")
				}
			}
		}
	}
}

func envOrFlag(envKey, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envKey)
}

func envOrFlagInt(envKey string, flagValue int) int {
	if flagValue != 0 {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func envOrFlagFloat(envKey string, flagValue float64) float64 {
	if flagValue != 0 {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return 0
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
