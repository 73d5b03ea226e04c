package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/knapsack/internal/application"
	"github.com/eugenenazirov/knapsack/internal/config"
	"github.com/eugenenazirov/knapsack/internal/logging"
	"github.com/eugenenazirov/knapsack/internal/solver"
)

var signalNotify = signal.Notify

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "knapsack: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	kingpinApp := kingpin.New("knapsack", "Solve 0/1 knapsack problems within a time budget")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()

	solveCmd := kingpinApp.Command("solve", "Solve a single problem document").Default()
	input := solveCmd.Flag("input", "Input file; reads stdin when omitted").Short('i').String()
	output := solveCmd.Flag("output", "Output file; writes stdout when omitted").Short('o').String()
	var durationSet bool
	duration := solveCmd.Flag("duration", "Maximum solve duration in seconds (default: 30)").
		Short('d').IsSetByUser(&durationSet).Int()

	serveCmd := kingpinApp.Command("serve", "Run the HTTP solve service")
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	command, err := kingpinApp.Parse(args)
	if err != nil {
		return err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}
	if durationSet {
		overrides.DurationSeconds = duration
	}
	if *port != "" {
		overrides.Port = port
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case serveCmd.FullCommand():
		return serve(cfg, logger)
	default:
		job := application.SolveJob{
			InputPath:  *input,
			OutputPath: *output,
			Budget:     cfg.Duration,
			Stdin:      stdin,
			Stdout:     stdout,
		}
		return application.RunSolve(context.Background(), job, solver.New(), logger)
	}
}

func serve(cfg config.Config, logger *zap.Logger) error {
	app, err := application.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
	return nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
