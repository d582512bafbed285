package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbirkedal/vendorledger/internal/api"
	"github.com/mbirkedal/vendorledger/internal/jobs"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard backend API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			processor, err := a.newProcessor()
			if err != nil {
				return err
			}

			jobStore := jobs.NewMemoryStore()
			queue := jobs.NewQueue(16, 2, jobStore)
			queue.Start(cmd.Context(), api.NewProcessJobHandler(processor, jobStore, a.logger.With("system", "jobs")))

			server := api.NewServer(api.Config{
				Port:           a.cfg.Server.Port,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
			}, a.repo, processor, jobStore, queue, a.logger.With("system", "api"))

			errChan := make(chan error, 1)
			go func() { errChan <- server.Start() }()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errChan:
				return err
			case <-sigChan:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := queue.Stop(shutdownCtx); err != nil {
				a.logger.Warn("job queue did not drain in time", "error", err)
			}
			return server.Shutdown(shutdownCtx)
		},
	}
}
