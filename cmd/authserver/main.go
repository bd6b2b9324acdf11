package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/energyos/espi-authz/internal/authz"
	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/energyos/espi-authz/internal/importer"
	"github.com/energyos/espi-authz/internal/server"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/energyos/espi-authz/pkg/logger"
	"github.com/energyos/espi-authz/pkg/metrics"
	"github.com/energyos/espi-authz/pkg/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of authserver",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("authserver version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "authserver",
		Short: "ESPI authorization server",
		Long:  `authserver manages OAuth2 authorizations between retail customers, third parties and a Green Button data custodian`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("AUTHSERVER_CONF"); envPath != "" {
		return envPath
	}
	return "configs/authserver.yaml"
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(getConfigPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting authserver",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	store, err := storage.NewStore(zapLogger, &cfg.Database)
	if err != nil {
		zapLogger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	m := metrics.New(cfg.Metrics)

	exchanger := authz.NewExchanger(zapLogger, cfg.Authz.TokenEndpoint, "", cfg.Authz.ExchangeTimeout)
	flow := authz.NewService(zapLogger, store, exchanger, cfg.Authz, cfg.BaseURL, cfg.Authz.AuthorizationEndpoint)

	sweeper := authz.NewSweeper(zapLogger, store, cfg.Authz.CreatedTTL, cfg.Authz.SweepInterval)
	sweeper.Start()

	imp := importer.New(zapLogger, store, importer.NewHTTPFetcher(zapLogger), m,
		cfg.Importer.QueueSize, cfg.Importer.Workers)

	srv, err := server.NewServer(cfg, zapLogger, flow, store, imp, m)
	if err != nil {
		zapLogger.Fatal("failed to initialize server", zap.Error(err))
	}

	go func() {
		if err := srv.Run(); err != nil {
			zapLogger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("failed to shutdown server", zap.Error(err))
	}

	sweeper.Stop()
	imp.Stop()
	flow.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}
