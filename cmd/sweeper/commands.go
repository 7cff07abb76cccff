package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/congo-pay/giftcard/internal/config"
	"github.com/congo-pay/giftcard/internal/infra"
	"github.com/congo-pay/giftcard/internal/ledger"
	"github.com/congo-pay/giftcard/internal/logging"
	"github.com/congo-pay/giftcard/internal/sweep"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("once", false, "Sweep a single time and exit")
	runCmd.Flags().Int("batch-size", 0, "Rows per statement (overrides SWEEP_BATCH_SIZE)")
}

var rootCmd = &cobra.Command{
	Use:          "sweeper",
	Short:        "Card status maintenance",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Expire due cards and close drained ones",
	Long: `Moves valid cards past their expire time to expired and valid cards
without balance to empty. Without --once it repeats every SWEEP_INTERVAL until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	once, _ := cmd.Flags().GetBool("once")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set for the sweeper")
	}
	if batchSize <= 0 {
		batchSize = cfg.SweepBatchSize
	}

	logger := logging.New(cfg.LogLevel, slog.String("service", cfg.AppName), slog.String("env", cfg.AppEnv))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName+"-sweeper")
	if err != nil {
		return err
	}
	defer db.Close()

	worker := sweep.NewWorker(ledger.NewPostgresStore(db), logger,
		sweep.WithBatchSize(batchSize),
		sweep.WithInterval(cfg.SweepInterval),
	)

	if once {
		res, err := worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep finished", "expired", res.Expired, "emptied", res.Emptied)
		return nil
	}

	logger.Info("sweeper started", "interval", cfg.SweepInterval.String(), "batch_size", batchSize)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("sweeper stopped")
	return nil
}
