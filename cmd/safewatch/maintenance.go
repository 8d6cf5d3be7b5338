package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"safewatch/internal/model"
	"safewatch/internal/rollup"
)

func rollupCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Aggregate one day of measurements and alerts into health history",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				d, err := time.ParseInLocation(model.DateLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				day = d
			}
			ctx, cancel := signalContext()
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := rollup.Rollup(ctx, store, day)
			if err != nil {
				return err
			}
			a.logger.Info("rollup complete", zap.String("date", day.Format(model.DateLayout)), zap.Int("workers", len(records)))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to aggregate (YYYY-MM-DD), default today")
	return cmd
}

func seedCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write synthetic health history for every worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := rollup.Seed(ctx, store, days, time.Now(), nil)
			if err != nil {
				return err
			}
			a.logger.Info("seed complete", zap.Int("days", days), zap.Int("records", len(records)))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to generate, today included")
	return cmd
}

func initDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			a.logger.Info("schema ready", zap.String("driver", a.cfg.Get().Storage.Driver))
			return nil
		},
	}
}
