package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleancoindev/zaidan-dealer-client/internal/app"
	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
)

type options struct {
	configPath string
	logLevel   string
	timeout    time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		if appErr := apperrors.Wrap(err); appErr.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "error: %v\nhint: %s\n", err, appErr.Suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "taker",
		Short:         "Request quotes from a dealer and settle them on chain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	cmd.AddCommand(
		marketsCommand(opts),
		assetsCommand(opts),
		quoteCommand(opts),
		swapCommand(opts),
		tradeCommand(opts),
		allowanceCommand(opts),
		awaitCommand(opts),
	)
	return cmd
}

// withApp bootstraps a session for the duration of fn.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger.Init(opts.logLevel, "text")

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
