package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/auth"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/platform"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		to           string
		keepSessions bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy all data between the json and sqlite storage backends",
		Long: `Copy every persona, app and key from the storage backend not named by --to
into the one that is. Run it while the daemon is stopped, then switch
server.storage in the config.

Sessions and pending recovery tokens are left behind, signing every user
out, unless --keep-sessions is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := migrate(*opts.cfg, to, keepSessions, opts.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d keys to %s\n", n, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "sqlite", "destination backend (sqlite|json)")
	cmd.Flags().BoolVar(&keepSessions, "keep-sessions", false, "also copy sessions, refresh tokens and recovery tokens")
	return cmd
}

// migrate copies the other backend's data into the backend named to.
func migrate(cfg config.Config, to string, keepSessions bool, logger *zap.Logger) (int, error) {
	if to != "sqlite" && to != "json" {
		return 0, fmt.Errorf("--to must be \"sqlite\" or \"json\", got %q", to)
	}
	files, err := engine.NewPersistence(cfg.Server.DataDir, logger)
	if err != nil {
		return 0, err
	}
	db, err := engine.OpenSQLite(cfg.Server.SQLitePath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var src, dst engine.Persister = files, db
	if to == "json" {
		src, dst = db, files
	}

	data, err := src.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to load source data: %w", err)
	}
	target := engine.NewMemStore(nil, dst, engine.WithLogger(logger))
	var keep engine.AppFilter
	if !keepSessions {
		keep = withoutSessions
	}
	n, err := engine.Migrate(engine.NewMemStore(data, nil), target, keep)
	target.Wait()
	return n, err
}

func withoutSessions(personaID, appID string) bool {
	if personaID != engine.SystemPersona {
		return true
	}
	switch appID {
	case auth.AppSessions, auth.AppRefresh, auth.AppRecovery:
		return false
	}
	return true
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "export <email> | export --all",
		Short: "Print a user and their contacts as JSON",
		Long: `Print a user and their contacts as JSON.

With --all every user is exported, ordered by email, as a JSON array.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := platform.Open(*opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			var doc any
			if all {
				if doc, err = p.ExportAll(); err != nil {
					return err
				}
			} else {
				user, contacts, err := p.Export(args[0])
				if err != nil {
					return err
				}
				doc = platform.Account{User: user, Contacts: contacts}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "export every user")
	return cmd
}

func newUsersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := platform.Open(*opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			users, err := p.Users()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), usersTable(users))
			return nil
		},
	}
}

func usersTable(users []schema.User) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("EMAIL", "ID", "CREATED", "LAST SIGN IN")
	for _, u := range users {
		last := "-"
		if !u.LastSignInAt.IsZero() {
			last = u.LastSignInAt.Local().Format(time.DateTime)
		}
		t.Row(u.Email, u.ID, u.CreatedAt.Local().Format(time.DateTime), last)
	}
	return t.String()
}
