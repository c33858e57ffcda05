// Command proxy starts the airgate HTTP proxy: a multi-provider LLM
// reverse proxy that classifies, optionally redacts, forwards, and
// captures every request/response pair to disk.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quietloop/airgate/pkg/capture"
	"github.com/quietloop/airgate/pkg/config"
	"github.com/quietloop/airgate/pkg/plugin"
	"github.com/quietloop/airgate/pkg/proxy"
	"github.com/quietloop/airgate/pkg/redactplugin"
)

func main() {
	configPath := flag.String("config", envOr("AIRGATE_CONFIG", ""), "path to proxy config YAML")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := initTracer(ctx)
	if err != nil {
		log.Printf("WARN: OTel tracing disabled: %v", err)
	} else if tp != nil {
		defer tp.Shutdown(ctx)
	}

	var archiver *capture.Archiver
	if cfg.Capture.Archive.Endpoint != "" {
		archiver, err = capture.NewArchiver(ctx, capture.ArchiveConfig{
			Endpoint:  cfg.Capture.Archive.Endpoint,
			AccessKey: cfg.Capture.Archive.AccessKey,
			SecretKey: cfg.Capture.Archive.SecretKey,
			Bucket:    cfg.Capture.Archive.Bucket,
			UseSSL:    cfg.Capture.Archive.UseSSL,
		})
		if err != nil {
			log.Printf("WARN: capture archiver disabled: %v", err)
			archiver = nil
		} else {
			log.Printf("capture archiver connected: %s", cfg.Capture.Archive.Endpoint)
		}
	}

	captureLogger, err := capture.NewLogger(cfg.Capture.Dir, cfg.Capture.MaxSessions, archiver)
	if err != nil {
		log.Fatalf("capture logger: %v", err)
	}
	log.Printf("captures: %s (maxSessions=%d)", captureLogger.Dir, cfg.Capture.MaxSessions)

	plugins, err := buildPlugins(cfg)
	if err != nil {
		log.Fatalf("plugins: %v", err)
	}
	for _, p := range plugins {
		if closer, ok := p.(interface{ Close() }); ok {
			defer closer.Close()
		}
	}

	if cfg.GatewayKey != "" {
		log.Println("gateway authentication: enabled (X-Gateway-Key header required)")
	} else {
		log.Println("gateway authentication: disabled (set gatewayKey to require auth)")
	}

	forwarder := proxy.NewForwarder(cfg.ResolveUpstreams(), cfg.AllowTargetOverride, cfg.GatewayKey, plugins, captureLogger)

	addr := net.JoinHostPort(cfg.BindHost, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      forwarder,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("airgate proxy listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
}

// buildPlugins wires the configured plugin list. Currently "redact" is
// the only recognized plugin name; unknown names are logged with a
// warning and skipped.
func buildPlugins(cfg *config.Config) ([]plugin.Plugin, error) {
	var plugins []plugin.Plugin
	for _, name := range cfg.Plugins {
		switch name {
		case "redact":
			policy, err := cfg.Redact.LoadPolicy()
			if err != nil {
				return nil, err
			}
			plugins = append(plugins, redactplugin.New(policy, cfg.Redact.Reversible, cfg.Redact.SessionTTL(), cfg.Redact.Verbose))
		default:
			log.Printf("WARN: unknown plugin %q ignored", name)
		}
	}
	return plugins, nil
}

func initTracer(ctx context.Context) (*sdktrace.TracerProvider, error) {
	endpoint := envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if endpoint == "" {
		return nil, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("airgate"),
		semconv.ServiceVersion("0.1.0"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
