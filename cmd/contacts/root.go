package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/internal/logging"
	"github.com/celerix-dev/celerix-contacts/internal/session"
	"github.com/celerix-dev/celerix-contacts/internal/tui"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const prepareTimeout = 30 * time.Second

var errNoTTY = errors.New("contacts needs an interactive terminal")

// options holds global flags.
type options struct {
	configPath string
	embedded   bool
}

// prepareFunc runs against the client before the UI starts.
type prepareFunc func(ctx context.Context, a *sdk.AuthClient) error

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage your contacts from the terminal",
		Long: `contacts keeps a personal address book on the Celerix contacts platform.

It connects to the contactsd daemon named by client.store_addr, or runs the
platform inside the process when no daemon is configured or reachable.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, tui.RouteGate, nil)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: system and user config files)")
	cmd.PersistentFlags().BoolVar(&opts.embedded, "embedded", false, "run the platform in-process instead of connecting to contactsd")

	cmd.AddCommand(newRecoverCommand(opts))
	return cmd
}

// config loads the configuration the flags select. The UI owns the terminal,
// so logs always go to a file.
func (o *options) config() (*config.Config, error) {
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
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if o.embedded {
		cfg.Client.StoreAddr = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(filepath.Dir(cfg.Client.SessionFile), "contacts.log")
	}
	return cfg, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// run starts the UI on route. prepare, when set, runs first.
func run(ctx context.Context, opts *options, route tui.Route, prepare prepareFunc) error {
	if !isTerminal(os.Stdout) {
		return errNoTTY
	}
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, files, err := sdk.NewFromConfig(*cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if prepare != nil {
		pctx, cancel := context.WithTimeout(ctx, prepareTimeout)
		err := prepare(pctx, client.Auth())
		cancel()
		if err != nil {
			return err
		}
	}

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if cfg.Client.WatchSession {
		sessionOpts = append(sessionOpts, session.WithWatchFile(files.Path()))
	}
	provider := session.New(client.Auth(), sessionOpts...)
	if err := provider.Start(ctx); err != nil {
		logger.Warn("Not following the session file", zap.Error(err))
	}
	defer provider.Stop()

	m := tui.New(tui.Deps{
		Session:           provider,
		Contacts:          client.Contacts(),
		Translator:        i18n.New(cfg.Client.Locale),
		Logger:            logger,
		RecoveryRedirect:  cfg.Client.RecoveryRedirect,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	}, route)
	defer m.Close()

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if fm, ok := final.(tui.Model); ok {
		fm.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
