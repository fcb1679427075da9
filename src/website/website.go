package website

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/jobs"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/moderation"
	"github.com/spf13/cobra"
)

var configPath string

var Command = &cobra.Command{
	Use:   "finstep",
	Short: "Run the FinStep credibility service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(config.ResolvePath(configPath)); err != nil {
			return err
		}
		logging.ApplyConfig()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Str("store", string(config.Config.Store)).Msg("Hello, FinStep!")

		ctx := context.Background()
		s, err := OpenStore(ctx)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open store")
		}
		defer s.Close()

		svc := moderation.NewService(s, config.Config.Credibility)

		backgroundJobs := jobs.Jobs{
			moderation.PeriodicallyRederiveLevels(svc, config.Config.Jobs.RederiveLevelsInterval),
			moderation.PeriodicallyVerifyLedgers(svc, config.Config.Jobs.VerifyLedgersInterval, config.Config.Jobs.VerifyConcurrency),
		}

		// Wait for SIGINT and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		<-signals // First SIGINT (start shutdown)
		logging.Info().Msg("Shutting down")

		done := make(chan struct{})
		go func() {
			logging.Info().Msg("Shutting down background jobs...")
			unfinished := backgroundJobs.CancelAndWait(10 * time.Second)
			if len(unfinished) == 0 {
				logging.Info().Msg("Background jobs closed gracefully")
			} else {
				logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
			}
			close(done)
		}()

		select {
		case <-done:
		case <-signals: // Second SIGINT (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed FinStep")
			os.Exit(1)
		}
	},
}

func init() {
	Command.PersistentFlags().StringVar(&configPath, "config", "", "Path to the TOML config file (default $"+config.PathEnvVar+" or "+config.DefaultPath+")")
}
