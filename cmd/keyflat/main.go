package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/keyflat/internal/application"
	"github.com/eugenenazirov/keyflat/internal/config"
	"github.com/eugenenazirov/keyflat/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("keyflat", "Keyflat - flattens nested JSON and YAML documents into dot-joined keys")

	serveCmd := kingpinApp.Command("serve", "Run the HTTP flattening service").Default()
	configFile := serveCmd.Flag("config", "Path to YAML configuration file").String()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	logLevel := serveCmd.Flag("log-level", "Log level (debug, info, warn, error)").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	serveMaxDepth := serveCmd.Flag("max-depth", "Maximum nesting depth accepted (set 0 to disable)").Default("-1").Int()
	serveMaxEntries := serveCmd.Flag("max-entries", "Maximum entries visited per document after alias expansion (set 0 to disable)").Default("-1").Int()

	flattenCmd := kingpinApp.Command("flatten", "Flatten a document and write the result to stdout")
	inputPath := flattenCmd.Arg("file", "Input document; stdin when omitted or -").String()
	inputFormat := flattenCmd.Flag("format", "Input format (json or yaml); inferred from the file extension by default").Enum("json", "yaml", "yml")
	outputFormat := flattenCmd.Flag("output", "Output format (json or yaml)").Default("json").Enum("json", "yaml", "yml")
	prefix := flattenCmd.Flag("prefix", "Prefix prepended to every flattened key").String()
	pretty := flattenCmd.Flag("pretty", "Indent the output").Bool()
	flattenMaxDepth := flattenCmd.Flag("max-depth", "Maximum nesting depth accepted (set 0 to disable)").Default("256").Int()
	flattenMaxEntries := flattenCmd.Flag("max-entries", "Maximum entries visited after alias expansion (set 0 to disable)").Default("1048576").Int()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	switch command {
	case flattenCmd.FullCommand():
		opts := flattenOptions{
			path:       *inputPath,
			format:     *inputFormat,
			output:     *outputFormat,
			prefix:     *prefix,
			pretty:     *pretty,
			maxDepth:   *flattenMaxDepth,
			maxEntries: *flattenMaxEntries,
		}
		if err := flattenFile(opts, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "keyflat: %v\n", err)
			os.Exit(1)
		}
		return
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	if *serveMaxDepth >= 0 {
		overrides.MaxDepth = serveMaxDepth
	}

	if *serveMaxEntries >= 0 {
		overrides.MaxEntries = serveMaxEntries
	}

	serve(overrides)
}

func serve(overrides *config.CLIOverrides) {
	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.Stringer("signal", sig))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
