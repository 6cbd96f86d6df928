package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/srvgate/internal/emulator"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/srvgate/internal/kernel/remote"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "srvemu: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("srvemu", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Emulator.Listen, "listen", cfg.Emulator.Listen, "gRPC listen address")
	flagSet.IntVar(&cfg.Emulator.MaxSessions, "max-sessions", cfg.Emulator.MaxSessions, "session limit of the srv: port")
	flagSet.StringVar(&cfg.Emulator.Manifest, "manifest", cfg.Emulator.Manifest, "YAML manifest of builtin services and titles")
	flagSet.StringVar(&cfg.Metrics.Listen, "metrics", cfg.Metrics.Listen, "Prometheus listen address")
	flagSet.BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", cfg.Metrics.Enabled, "serve /metrics")
	flagSet.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")
	flagSet.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return err
	}
	defer logger.Sync()

	manifest, err := config.LoadManifest(cfg.Emulator.Manifest)
	if err != nil {
		return err
	}

	metrics := monitoring.NewMetrics(nil)
	done := make(chan struct{})
	defer close(done)
	go metrics.RunUptime(done)

	emu, err := emulator.New(manifest, cfg.Emulator.MaxSessions, logger, metrics)
	if err != nil {
		return err
	}
	defer emu.Close()

	tracer := tracing.New("srvemu", logger)
	defer tracer.Close()

	interceptors := []grpc.UnaryServerInterceptor{
		remote.MetricsInterceptor(metrics),
		tracing.GRPCUnaryInterceptor(tracer),
	}
	if cfg.RateLimit.Enabled {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		interceptors = append([]grpc.UnaryServerInterceptor{remote.RateLimitInterceptor(limiter)}, interceptors...)
	}

	kernelServer := remote.NewServer(emu.Kernel, remote.WithServerLogger(logger), remote.WithServerMetrics(metrics))
	defer kernelServer.Close()

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	remote.RegisterKernelServer(grpcServer, kernelServer)

	lis, err := net.Listen("tcp", cfg.Emulator.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Emulator.Listen, err)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	logger.Info("emulator listening",
		zap.String("addr", lis.Addr().String()),
		zap.Strings("services", emu.Manager.Services()))

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Listen))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	}

	grpcServer.GracefulStop()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
	return nil
}
