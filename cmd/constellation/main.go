// Command constellation runs the fleet's registry, HTTP/dashboard API,
// nodes-manifest reconciler, and mDNS advertiser as sibling tasks under
// one cancellation scope (spec.md §4.6, §4.7, §4.8, §5).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/constellationapi"
	"github.com/master-of-zen/ferris-swarm/internal/discovery"
	"github.com/master-of-zen/ferris-swarm/internal/nodesmanifest"
	"github.com/master-of-zen/ferris-swarm/internal/registry"
	"github.com/master-of-zen/ferris-swarm/internal/settingsfile"
)

const reconcileInterval = 60 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "config":
		err = runConfigGenerate(os.Args[2:])
	case "nodes":
		err = runNodesGenerate(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Println("ferris-swarm-constellation version dev")
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`ferris-swarm-constellation - fleet registry, dashboard and discovery

Usage:
  ferris-swarm-constellation <command> [options]

Commands:
  start              Run the constellation server
  config --generate PATH   Write an example constellation config file
  nodes --generate PATH    Write an example nodes manifest
  version            Print version information
  help               Show this help message

Run 'ferris-swarm-constellation start --help' for start command options.
`)
}

func runConfigGenerate(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var path string
	fs.StringVar(&path, "generate", "", "Output path for the example config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("--generate PATH is required")
	}
	if err := settingsfile.GenerateConstellationConfig(path); err != nil {
		return err
	}
	fmt.Printf("Wrote example constellation config to %s\n", path)
	return nil
}

func runNodesGenerate(args []string) error {
	fs := flag.NewFlagSet("nodes", flag.ExitOnError)
	var path string
	fs.StringVar(&path, "generate", "", "Output path for the example nodes manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("--generate PATH is required")
	}
	if err := settingsfile.GenerateManifest(path); err != nil {
		return err
	}
	fmt.Printf("Wrote example nodes manifest to %s\n", path)
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Run the constellation server.

Usage:
  ferris-swarm-constellation start [options]

Options:
  --config <PATH>         TOML settings file (section [constellation])
  --bind <ADDR:PORT>       Bind address for the HTTP/dashboard server
  --nodes-config <PATH>    Nodes manifest for auto pre-registration
  --auto-register          Enable nodes-manifest reconciliation
  --no-mdns                Disable mDNS advertisement
  --verbose                Enable debug-level logging
`)
	}

	var (
		configPath   string
		bindArg      string
		nodesConfig  string
		autoRegister bool
		noMDNS       bool
		verbose      bool
	)
	fs.StringVar(&configPath, "config", "", "TOML settings file")
	fs.StringVar(&bindArg, "bind", "", "Bind address for the HTTP server")
	fs.StringVar(&nodesConfig, "nodes-config", "", "Nodes manifest path")
	fs.BoolVar(&autoRegister, "auto-register", false, "Enable nodes-manifest reconciliation")
	fs.BoolVar(&noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	fs.BoolVar(&verbose, "verbose", false, "Enable debug-level logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := settingsfile.LoadConstellationSettings(configPath)
	if err != nil {
		return err
	}
	if bindArg != "" {
		settings.Bind = bindArg
	}
	if nodesConfig != "" {
		settings.NodesConfigPath = nodesConfig
	}
	if autoRegister {
		settings.AutoRegister = true
	}
	if noMDNS {
		settings.NoMDNS = true
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	reg := registry.New(registry.Config{
		NodeTimeout:   time.Duration(settings.NodeTimeoutSeconds) * time.Second,
		ClientTimeout: time.Duration(settings.ClientTimeoutSeconds) * time.Second,
	}, log)

	handler := constellationapi.NewHandler(reg, time.Duration(settings.RefreshIntervalMs)*time.Millisecond, log)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         settings.Bind,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	stopSweeper := make(chan struct{})
	go reg.RunSweeper(60*time.Second, stopSweeper)

	var stopReconciler chan struct{}
	if settings.AutoRegister {
		stopReconciler = make(chan struct{})
		reconciler := nodesmanifest.NewReconciler(settings.NodesConfigPath, reg, log)
		go reconciler.Run(reconcileInterval, stopReconciler)
	}

	var stopAdvertiser chan struct{}
	if !settings.NoMDNS {
		hostname, port, err := splitHostPort(settings.Bind)
		if err != nil {
			return fmt.Errorf("invalid --bind address %q: %w", settings.Bind, err)
		}
		advertiser := discovery.NewAdvertiser(hostname, port, log)
		stopAdvertiser = make(chan struct{})
		go func() {
			if err := advertiser.Run(stopAdvertiser); err != nil {
				log.WithError(err).Warn("mdns advertiser stopped")
			}
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.WithField("bind", settings.Bind).Info("serving constellation HTTP API")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	// The HTTP server, liveness sweeper, nodes-manifest reconciler, and
	// mDNS advertiser run side by side. When the server exits or a signal
	// arrives, the sweeper, reconciler and advertiser stop channels are
	// closed; their goroutines are not awaited before the process returns.
	var runErr error
	select {
	case runErr = <-serverErrCh:
		cancel()
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		runErr = server.Shutdown(shutdownCtx)
	}

	close(stopSweeper)
	if stopReconciler != nil {
		close(stopReconciler)
	}
	if stopAdvertiser != nil {
		close(stopAdvertiser)
	}

	return runErr
}

func splitHostPort(bind string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if host == "" || host == "0.0.0.0" {
		host, _ = os.Hostname()
	}
	return host, port, nil
}
