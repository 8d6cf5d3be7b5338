package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/logging"
	"safewatch/internal/storage"
)

var version = "dev"

type app struct {
	configPath string
	cfg        *config.Manager
	logger     *zap.Logger
	level      zap.AtomicLevel
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "safewatch",
		Short:         "Worker safety monitoring backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("SAFEWATCH_CONFIG"), "path to YAML or JSON configuration")

	root.AddCommand(serveCmd(a), rollupCmd(a), seedCmd(a), initDBCmd(a))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: load .env:", err)
	}
	cfg, err := config.NewManager(config.ResolvePath(a.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	current := cfg.Get()
	logger, level, err := logging.NewLogger(current.LogLevel, current.LogFormat, current.ServiceName)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg, a.logger, a.level = cfg, logger, level
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	st, err := storage.NewStore(a.cfg.Get().Storage)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return st, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
