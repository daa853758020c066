package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-ml/podium/internal/api"
	"github.com/meridian-ml/podium/internal/leaderboard"
	"github.com/meridian-ml/podium/internal/pipeline"
	"github.com/meridian-ml/podium/internal/resilience"
)

var (
	servePort         int
	serveCompetitions string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API server",
	Long:  "Serves submission upload, submission status, and leaderboard endpoints. In async mode scoring workers run in-process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		if serveCompetitions != "" {
			if err := seedCompetitions(ctx, env, serveCompetitions); err != nil {
				return err
			}
		}

		boards := leaderboard.New(env.Store, nil)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port()),
			Handler:           api.NewServer(env.Store, env.Pipeline, boards).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)

		if cfg.Scoring.Async {
			if _, err := env.Pipeline.RecoverStalled(ctx, 0); err != nil {
				zap.L().Warn("recover stalled submissions", zap.Error(err))
			}
			if _, err := env.Pipeline.Requeue(ctx, 0); err != nil {
				zap.L().Warn("requeue pending submissions", zap.Error(err))
			}
			g.Go(func() error {
				return env.Pipeline.RunWorkers(ctx, workerConfig())
			})
		}

		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			return srv.Shutdown(cmd.Context())
		})

		zap.L().Info("starting server", zap.Int("port", port()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stop()
			_ = g.Wait()
			return eris.Wrap(err, "server listen")
		}

		return g.Wait()
	},
}

func port() int {
	if servePort != 0 {
		return servePort
	}
	return cfg.Server.Port
}

func workerConfig() pipeline.WorkerConfig {
	return pipeline.WorkerConfig{
		Workers:    cfg.Scoring.Workers,
		RatePerSec: cfg.Scoring.RatePerSec,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Scoring.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Scoring.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Scoring.MaxBackoffSecs) * time.Second,
			Multiplier:     cfg.Scoring.BackoffMultiplier,
		},
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveCompetitions, "competitions", "", "YAML file of competitions to seed at startup")
	rootCmd.AddCommand(serveCmd)
}
