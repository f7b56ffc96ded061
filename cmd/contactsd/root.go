package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/logging"
)

// rootOptions holds global flags and what PersistentPreRunE builds from them.
type rootOptions struct {
	configPath string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "contactsd",
		Short: "Celerix contacts platform daemon",
		Long: `contactsd hosts the contacts platform: sign-up, sign-in, sessions,
password recovery and a contacts table where every row belongs to one user.

The SDK talks to it over TCP; the REST API is served over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: system and user config files)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newUsersCommand(opts))

	return cmd
}

// load reads the config file (or the layered defaults), applies environment
// overrides and builds the logger.
func (o *rootOptions) load() error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadLayered(config.DefaultPaths()...)
	}
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.cfg, o.logger = cfg, logger
	return nil
}
