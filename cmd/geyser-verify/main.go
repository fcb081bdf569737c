// Package main provides a CLI that checks a geyser block feed against Solana
// RPC: for every finalized block streamed during a bounded run, the
// transaction count reported by the feed is compared with an independent
// re-derivation from RPC, and divergences are reported.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"

	"github.com/solwatch/geyser-verify/internal/adapters/outbound/geyser"
	"github.com/solwatch/geyser-verify/internal/adapters/outbound/sns"
	"github.com/solwatch/geyser-verify/internal/adapters/outbound/solanarpc"
	"github.com/solwatch/geyser-verify/internal/adapters/outbound/telemetry"
	"github.com/solwatch/geyser-verify/internal/pkg/env"
	"github.com/solwatch/geyser-verify/internal/ports/outbound"
	"github.com/solwatch/geyser-verify/internal/services/reconciler"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	_ = godotenv.Load(".env")

	streamEndpoint := flag.String("stream-endpoint", env.Get("STREAM_ENDPOINT", ""), "WebSocket endpoint of the block feed gateway (ws:// or wss://)")
	xToken := flag.String("x-token", env.Get("STREAM_X_TOKEN", ""), "Access token for the block feed (optional)")
	rpcEndpoint := flag.String("rpc-endpoint", env.Get("RPC_ENDPOINT", ""), "Solana HTTP JSON-RPC endpoint (http:// or https://)")
	duration := flag.Uint("duration", 60, "Run duration in seconds")
	output := flag.String("output", "text", "Final report format: 'text' or 'json'")
	failOnMismatch := flag.Bool("fail-on-mismatch", false, "Exit non-zero when any mismatch was detected")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("geyser-verify\n")
		fmt.Printf("  Commit:     %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	cfg := runConfig{
		streamEndpoint: *streamEndpoint,
		xToken:         *xToken,
		rpcEndpoint:    *rpcEndpoint,
		duration:       time.Duration(*duration) * time.Second,
		output:         *output,
		failOnMismatch: *failOnMismatch,
	}

	// Configuration problems are fatal before any network activity.
	if err := cfg.validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

type runConfig struct {
	streamEndpoint string
	xToken         string
	rpcEndpoint    string
	duration       time.Duration
	output         string
	failOnMismatch bool
}

func (c runConfig) validate() error {
	if c.streamEndpoint == "" {
		return fmt.Errorf("stream endpoint is required (-stream-endpoint or STREAM_ENDPOINT)")
	}
	u, err := url.Parse(c.streamEndpoint)
	if err != nil {
		return fmt.Errorf("parsing stream endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream endpoint must be ws:// or wss://, got %q", u.Scheme)
	}

	if c.rpcEndpoint == "" {
		return fmt.Errorf("RPC endpoint is required (-rpc-endpoint or RPC_ENDPOINT)")
	}
	u, err = url.Parse(c.rpcEndpoint)
	if err != nil {
		return fmt.Errorf("parsing RPC endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("RPC endpoint must be http:// or https://, got %q", u.Scheme)
	}

	if c.duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if c.output != "text" && c.output != "json" {
		return fmt.Errorf("unknown output format: %s (supported: text, json)", c.output)
	}

	return nil
}

func run(ctx context.Context, logger *slog.Logger, cfg runConfig) error {
	logger.Info("starting geyser-verify",
		"commit", GitCommit,
		"stream", cfg.streamEndpoint,
		"rpc", cfg.rpcEndpoint,
		"duration", cfg.duration,
	)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    "geyser-verify",
		ServiceVersion: GitCommit,
		Environment:    env.Get("ENVIRONMENT", "dev"),
		OTLPEndpoint:   env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics("geyser-verify")
	if err != nil {
		return fmt.Errorf("creating metrics recorder: %w", err)
	}

	subscriber, err := geyser.NewSubscriber(geyser.Config{
		Endpoint: cfg.streamEndpoint,
		XToken:   cfg.xToken,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating subscriber: %w", err)
	}

	counter, err := solanarpc.NewClient(solanarpc.ClientConfig{
		Endpoint: cfg.rpcEndpoint,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating RPC client: %w", err)
	}

	alerts, err := buildAlertSink(ctx, logger)
	if err != nil {
		return fmt.Errorf("creating alert sink: %w", err)
	}
	if alerts != nil {
		defer alerts.Close()
	}

	serviceConfig := reconciler.DefaultConfig()
	serviceConfig.Duration = cfg.duration
	serviceConfig.Logger = logger

	service, err := reconciler.NewService(serviceConfig, subscriber, counter, alerts, metrics)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	report, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("running reconciliation: %w", err)
	}

	if err := printReport(report, cfg.output); err != nil {
		return fmt.Errorf("printing report: %w", err)
	}

	if cfg.failOnMismatch && !report.Clean() {
		return fmt.Errorf("detected %d mismatched blocks", report.MismatchCount())
	}

	return nil
}

// buildAlertSink wires the SNS mismatch alert sink when a topic is
// configured; otherwise alerting stays disabled.
func buildAlertSink(ctx context.Context, logger *slog.Logger) (outbound.AlertSink, error) {
	topicARN := env.Get("SNS_MISMATCH_TOPIC_ARN", "")
	if topicARN == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	sink, err := sns.NewAlertSink(awssns.NewFromConfig(awsCfg), sns.Config{
		TopicARN: topicARN,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("mismatch alerting enabled", "topic", topicARN)
	return sink, nil
}

func printReport(report *reconciler.Report, format string) error {
	switch format {
	case "json":
		jsonStr, err := report.FormatJSON()
		if err != nil {
			return err
		}
		fmt.Println(jsonStr)
	case "text":
		fmt.Print(report.FormatText())
	default:
		return fmt.Errorf("unknown output format: %s (supported: text, json)", format)
	}
	return nil
}
