package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conference-central/backend/config"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "conferencectl",
		Short:        "Operate the conference backend",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	env := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		return cfg, newLogger(verbose), nil
	}
	root.AddCommand(newMigrateCmd(env), newAnnounceCmd(env), newTokenCmd(env))
	return root
}

type envFunc func() (*config.Config, *zap.Logger, error)

func newLogger(verbose bool) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, _ := config.Build()
	return logger
}
