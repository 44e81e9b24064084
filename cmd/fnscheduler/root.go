package main

import (
	"fmt"
	"strings"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "FNSCHED"

func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "fnscheduler",
		Short:         "Run functions on a pool of long-lived worker processes",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// FNSCHED_<FLAG> environment variables fill unset flags
			if err := cobrautil.SyncViperPreRunE(envPrefix)(cmd, args); err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			logger, err := newLogger(level, format)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = zap.L().Sync()
		},
	}

	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "log format: console or json")

	root.AddCommand(NewRunCommand(v), NewStatusCommand())
	return root
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
