package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/example/es-bank-account/internal/config"
	"github.com/example/es-bank-account/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "bank",
		Short:         "Event-sourced bank account service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json, logfmt)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newHashPasswordCmd(),
	)
	return root
}

// load resolves configuration and builds the process logger
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	loader := config.NewLoader().WithConfigPath(o.configPath)
	for key, flag := range map[string]string{"log.level": "log-level", "log.format": "log-format"} {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := loader.BindFlag(key, f); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}
