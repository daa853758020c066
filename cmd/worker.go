package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var workerSweepSecs int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run scoring workers without the API server",
	Long:  "Consumes the scoring queue, feeding it by sweeping the store for PENDING submissions on an interval. Useful for draining a backlog after downtime.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Pipeline.RecoverStalled(ctx, 0); err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Pipeline.RunWorkers(ctx, workerConfig())
		})
		g.Go(func() error {
			return sweepLoop(ctx, env, time.Duration(workerSweepSecs)*time.Second)
		})

		err = g.Wait()
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// sweepLoop periodically enqueues PENDING submissions so work created by
// other processes (or left over from a crash) gets scored.
func sweepLoop(ctx context.Context, env *scoringEnv, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := env.Pipeline.Requeue(ctx, 0); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func init() {
	workerCmd.Flags().IntVar(&workerSweepSecs, "sweep-interval", 10, "seconds between PENDING submission sweeps")
	rootCmd.AddCommand(workerCmd)
}
