package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pesio-ai/be-print-rfq/internal/platform/config"
	"github.com/pesio-ai/be-print-rfq/internal/platform/database"
	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

const app = "print-rfq"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "print-rfq matches print jobs to vendors and runs the request-for-quote lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is rfq.yaml in the current directory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd, matchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration with the persistent flags bound on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
		return nil, fmt.Errorf("bind log-level flag: %w", err)
	}
	return config.LoadWith(v, cfgFile)
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	return database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
}

func serviceOptions(cfg *config.Config) service.Options {
	return service.Options{
		DefaultVendorLimit:  cfg.RFQ.DefaultVendorLimit,
		DispatchConcurrency: cfg.RFQ.DispatchConcurrency,
		BrokerName:          cfg.RFQ.BrokerName,
		ReplyTo:             cfg.RFQ.ReplyToEmail,
	}
}

// repositories bundles the Postgres stores.
type repositories struct {
	jobs    *repository.JobRepository
	vendors *repository.VendorRepository
	quotes  *repository.QuoteRequestRepository
	events  *repository.QuoteEventRepository
}

func newRepositories(db *database.DB) *repositories {
	return &repositories{
		jobs:    repository.NewJobRepository(db),
		vendors: repository.NewVendorRepository(db),
		quotes:  repository.NewQuoteRequestRepository(db),
		events:  repository.NewQuoteEventRepository(db),
	}
}
