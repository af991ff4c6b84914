package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deckpilot/deckd/internal/app"
	"github.com/deckpilot/deckd/internal/config"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "deckd",
		Short: "Deckd drives a Stream Deck from a button database",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newReloadCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the deck driver and config API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask a running daemon to re-run the load script",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Post("http://"+cfg.HTTPAddr+"/api/v1/reload", "application/json", nil)
			if err != nil {
				return fmt.Errorf("reach daemon at %s: %w", cfg.HTTPAddr, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("reload failed: %s", resp.Status)
			}
			cmd.Println("reloaded")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
