package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/riskservice/internal/api"
	"github.com/opensource-finance/riskservice/internal/cache"
	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/gateway"
	"github.com/opensource-finance/riskservice/internal/repository"
	"github.com/opensource-finance/riskservice/internal/service"
	"github.com/opensource-finance/riskservice/internal/telemetry"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting riskservice",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"gateway", cfg.Gateway.Type,
		"apikey_set", cfg.Gateway.APIKey != "",
		"tracing", cfg.Tracing.Enabled,
	)

	// OData v4 serialises Edm.Decimal as a JSON number
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:       cfg.Tracing.Enabled,
		ServiceName:   cfg.Tracing.ServiceName,
		Version:       Version,
		Endpoint:      cfg.Tracing.Endpoint,
		Insecure:      cfg.Tracing.Insecure,
		SamplingRatio: cfg.Tracing.SamplingRatio,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize partner gateway
	partners, err := gateway.New(cfg.Gateway, cacheImpl, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize partner gateway: %w", err)
	}
	slog.Info("partner gateway initialized", "type", cfg.Gateway.Type, "base_url", cfg.Gateway.BaseURL)

	svc := service.New(repo, partners, cfg.Gateway.APIKey, slog.Default())
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("riskservice is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.Error("tracing shutdown failed", "error", err)
	}

	slog.Info("riskservice shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	base := cfg.Server.BasePath
	if base == "" {
		base = api.DefaultBasePath
	}

	fmt.Println()
	fmt.Println("  riskservice")
	fmt.Println("  Risks with live business partner data")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d%s\n", cfg.Server.Host, cfg.Server.Port, base)
	fmt.Printf("  Partners: %s\n", cfg.Gateway.Type)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /Risks             - List risks ($select, $expand=bp, $filter, ...)")
	fmt.Println("    GET  /Risks/{id}        - Get a risk by ID")
	fmt.Println("    GET  /BusinessPartners  - List named business partners")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
