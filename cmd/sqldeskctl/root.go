package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/charlesng35/sqldesk/internal/app"
	"github.com/charlesng35/sqldesk/internal/database"
	"github.com/charlesng35/sqldesk/internal/kvstore"
	"github.com/charlesng35/sqldesk/internal/services"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sqldeskctl",
		Short: "Manage saved SQL Desk connections",
		Long: `sqldeskctl reads and edits the saved connection collection directly in the
configured store, using the same configuration file as the server.

Changes made here are not pushed to browsers connected to a running server;
they see them after the next reload.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration directory or file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Log level for diagnostic output")

	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newReorderCmd(opts))
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newSnapshotCmd(opts))

	return cmd
}

// session holds the storage handles a single command works against.
type session struct {
	Registry  *services.ConnectionRegistry
	Snapshots *services.SnapshotService

	db         *gorm.DB
	closeStore func() error
}

func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if _, err := app.ApplyRuntimeDefaults(cfg); err != nil {
		return nil, err
	}

	logOpts := cfg.LoggerOptions()
	logOpts.Level = opts.logLevel
	logOpts.File = ""
	if err := app.ConfigureLogging(logOpts); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	db, err := database.Open(cfg.Database.ConnectionConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &session{db: db}

	if err := database.Prepare(db); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	store, closeStore, err := kvstore.New(ctx, cfg.Storage.StoreConfig(), db)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open connection store: %w", err)
	}
	s.closeStore = closeStore

	s.Registry, err = services.NewConnectionRegistry(store, services.WithStorageKey(cfg.Storage.Key))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	// Writing over a collection that could not be read would discard it.
	if state := s.Registry.Load(ctx); state.Degraded() {
		_ = s.Close()
		return nil, fmt.Errorf("stored connections are %s; refusing to continue", state)
	}

	s.Snapshots, err = services.NewSnapshotService(db, s.Registry)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *session) Close() error {
	var errs error
	if s.closeStore != nil {
		errs = multierr.Append(errs, s.closeStore())
	}
	errs = multierr.Append(errs, database.Close(s.db))
	return errs
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, opts *rootOptions, fn func(*session) error) (err error) {
	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	return fn(s)
}

func loadConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}
