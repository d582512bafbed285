// Package commands wires the CLI: process, serve, vendors and stats
// subcommands over the shared configuration and storage.
package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbirkedal/vendorledger/internal/infrastructure/config"
	"github.com/mbirkedal/vendorledger/internal/infrastructure/logging"
	"github.com/mbirkedal/vendorledger/internal/infrastructure/storage"
	"github.com/mbirkedal/vendorledger/internal/oracle"
	"github.com/mbirkedal/vendorledger/internal/pipeline"
)

// NewRootCommand creates the root CLI command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "vendorledger",
		Short: "Categorize bank-statement CSVs and resolve vendor identities",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config.yaml, falling back to environment)")

	rootCmd.AddCommand(newProcessCommand(&configPath))
	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newVendorsCommand(&configPath))
	rootCmd.AddCommand(newStatsCommand(&configPath))

	return rootCmd
}

// app bundles the dependencies most commands need.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	repo   *storage.Storage
}

func newApp(configPath string) (*app, error) {
	cfg := config.LoadOrEnv(configPath)
	logger := logging.NewLogger(cfg.Logging)

	repo, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Storage.DatabasePath, err)
	}

	return &app{cfg: cfg, logger: logger, repo: repo}, nil
}

func (a *app) close() {
	_ = a.repo.Close()
}

func (a *app) newProcessor() (*pipeline.Processor, error) {
	orc, err := oracle.New(oracle.Config{
		Provider: a.cfg.Oracle.Provider,
		APIKey:   a.cfg.APIKey(),
		Model:    a.cfg.Oracle.Model,
		CacheTTL: a.cfg.Oracle.CacheTTLSeconds,
	})
	if err != nil {
		return nil, err
	}
	if a.cfg.APIKey() == "" {
		a.logger.Warn("no oracle API key configured, categorization calls will fail")
	}

	var verifier pipeline.DomainVerifier
	if a.cfg.Verification.Enabled {
		verifier = pipeline.NewHTTPDomainVerifier(
			time.Duration(a.cfg.Verification.TimeoutSeconds)*time.Second,
			time.Duration(a.cfg.Verification.CacheTTLSeconds)*time.Second,
			a.logger.With("system", "domaincheck"),
		)
	}

	return pipeline.NewProcessor(a.repo, orc, pipeline.Options{
		BatchSize:    a.cfg.Pipeline.BatchSize,
		LookbackDays: a.cfg.Pipeline.LookbackDays,
		Verifier:     verifier,
		Logger:       a.logger.With("system", "pipeline"),
	}), nil
}
