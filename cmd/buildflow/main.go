package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/daemon"
	"git.home.luguber.info/inful/buildflow/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"buildflow.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
	Server  string `short:"s" help:"Admin API base URL for client commands" default:"http://127.0.0.1:8085"`

	Run struct{} `cmd:"" help:"Start the build orchestration daemon"`

	Submit struct {
		Key      string            `arg:"" help:"Job key (unique identity, e.g. the site name)"`
		Priority int               `short:"p" help:"Job priority (higher wins on merge)"`
		Param    map[string]string `help:"Job parameters as name=value pairs"`
		Dep      []string          `help:"Informational dependency keys"`
	} `cmd:"" help:"Submit a job to a running daemon"`

	Status struct {
		JSON bool `help:"Print the raw JSON snapshot"`
	} `cmd:"" help:"Show the orchestrator status"`

	Pause  struct{} `cmd:"" help:"Pause scheduling (queue keeps accumulating)"`
	Resume struct{} `cmd:"" help:"Resume scheduling after a pause"`
	Drain  struct{} `cmd:"" help:"Finish active work, then stop the daemon"`
	Stop   struct{} `cmd:"" help:"Stop immediately, abandoning active work"`

	Concurrency struct {
		Limit int `arg:"" help:"New concurrency limit"`
	} `cmd:"" help:"Adjust the concurrency limit of a running daemon"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch ctx.Command() {
	case "run":
		err = runDaemon()
	case "submit <key>":
		err = clientSubmit()
	case "status":
		err = clientStatus()
	case "pause":
		err = clientSignal("pause")
	case "resume":
		err = clientSignal("resume")
	case "drain":
		err = clientSignal("drain")
	case "stop":
		err = clientSignal("stop")
	case "concurrency <limit>":
		err = clientConcurrency()
	case "version":
		fmt.Printf("buildflow %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	setupLogging(cfg.Logging)

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// setupLogging replaces the default logger with the configured handler. The
// --verbose flag wins over the config level.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
