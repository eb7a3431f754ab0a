package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/config"
	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/db"
	"github.com/eargollo/reclaim/internal/deletion"
	"github.com/eargollo/reclaim/internal/history"
	"github.com/eargollo/reclaim/internal/session"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "reclaim",
		Short:         "Review and delete duplicate media on a media server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), ctx.logLevel(cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newCleanCommand(ctx))
	rootCmd.AddCommand(newTUICommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil && *c.logLevelFlag != "" {
		return *c.logLevelFlag
	}
	return cfg.LogLevel
}

// mode resolves a --mode flag against the configured default.
func (c *commandContext) mode(flag string) (content.Mode, error) {
	if flag == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return "", err
		}
		flag = cfg.Mode
	}
	return content.ParseMode(flag)
}

func (c *commandContext) backendClient() (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithInsecureTLS(cfg.InsecureTLS))
}

// openJournal opens the deletion journal database and applies migrations.
func (c *commandContext) openJournal(ctx context.Context) (*history.Journal, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(ctx, database); err != nil {
		database.Close()
		return nil, nil, err
	}
	return history.New(database), func() { database.Close() }, nil
}

// newSession builds a session against the configured backend. rec may be nil.
func (c *commandContext) newSession(rec deletion.Recorder) (*session.Session, *backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := c.backendClient()
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(session.Deps{
		Backend:           client,
		Recorder:          rec,
		BatchWidth:        cfg.PageBatchWidth,
		RefreshDelay:      cfg.RefreshDelay,
		DeleteConcurrency: cfg.DeleteConcurrency,
	})
	return sess, client, nil
}

// optionalJournal opens the journal but only warns when that fails; the
// commands that delete still work without history.
func (c *commandContext) optionalJournal(ctx context.Context) (deletion.Recorder, func()) {
	journal, closeFn, err := c.openJournal(ctx)
	if err != nil {
		slog.Warn("deletion history disabled", "error", err)
		return nil, func() {}
	}
	return journal, closeFn
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func loadFailure(sess *session.Session, err error) error {
	if msg := sess.Content().State().LoadingError; msg != "" {
		return fmt.Errorf("load content: %s", msg)
	}
	return err
}
