package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilianp07/taxidispatch/app"
	"github.com/kilianp07/taxidispatch/config"
	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/pkg/export"
)

var (
	cfgPath    string
	reportPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "taxidispatch",
	Short:        "Taxi fleet dispatch simulator",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.New("main").Warnf("load .env: %v", err)
		}
		level := logLevel
		if level == "" {
			level = os.Getenv("LOG_LEVEL")
		}
		logger.SetLevel(level)
	},
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (defaults to LOG_LEVEL, then info)")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write the final summary to this file (.json, .csv, .yaml or .html)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if reportPath != "" {
		if _, err := export.Writer(reportPath); err != nil {
			return err
		}
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	log := logger.New("main")
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()

	sum, err := svc.Run(ctx)
	if err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if err := export.WriteText(cmd.OutOrStdout(), sum); err != nil {
		return err
	}
	if reportPath != "" {
		if err := export.WriteFile(reportPath, sum); err != nil {
			log.Errorf("write report: %v", err)
		} else {
			log.Infof("report written to %s", reportPath)
		}
	}
	return nil
}
