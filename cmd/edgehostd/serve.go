package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimbusedge/edgehost/pkg/config"
	"github.com/nimbusedge/edgehost/pkg/ingress"
	"github.com/nimbusedge/edgehost/pkg/isolate"
	"github.com/nimbusedge/edgehost/pkg/log"
	"github.com/nimbusedge/edgehost/pkg/metrics"
	"github.com/nimbusedge/edgehost/pkg/registry"
	"github.com/nimbusedge/edgehost/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the edge function host",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the YAML config file (required)")
	serveCmd.Flags().String("listen", "", "Override the ingress listen address")
	serveCmd.Flags().String("metrics-listen", "", "Override the metrics listen address")
	serveCmd.Flags().String("region", "", "Override the synthetic FLY_REGION value")
	serveCmd.Flags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("log-json", false, "Force JSON log output")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("metrics-listen"); v != "" {
		cfg.MetricsListen = v
	}
	if v, _ := cmd.Flags().GetString("region"); v != "" {
		cfg.Region = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	if err := os.Setenv("FLY_REGION", cfg.Region); err != nil {
		return fmt.Errorf("setting region: %w", err)
	}

	reg := registry.New()
	for slug, locator := range cfg.Locators() {
		reg.Register(slug, locator)
	}
	if cfg.RegistryBoltPath != "" {
		store, err := storage.Open(cfg.RegistryBoltPath)
		if err != nil {
			return fmt.Errorf("opening registration store: %w", err)
		}
		defer store.Close()
		n, err := store.LoadInto(reg)
		if err != nil {
			return fmt.Errorf("loading persisted registrations: %w", err)
		}
		log.Logger.Info().Int("count", n).Str("path", cfg.RegistryBoltPath).Msg("loaded persisted registrations")
	}
	log.Logger.Info().Int("count", reg.Len()).Msg("registry populated")

	isolates := isolate.New(cfg.Ports)
	router := ingress.NewRouter(reg, isolates)

	metricsServer := &http.Server{Addr: cfg.MetricsListen, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	ingressServer := &http.Server{Addr: cfg.Listen, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		if err := ingressServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Logger.Info().Str("listen", cfg.Listen).Str("metrics_listen", cfg.MetricsListen).Str("region", cfg.Region).Msg("edgehostd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("ingress server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = ingressServer.Shutdown(ctx)
	_ = metricsServer.Shutdown(ctx)
	return nil
}
