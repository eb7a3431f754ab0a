package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/eargollo/reclaim/internal/api"
	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/scheduler"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()
			slog.Info("reclaim starting",
				"version", version,
				"log_level", ctx.logLevel(cfg),
				"http_addr", cfg.HTTPAddr,
				"db_path", cfg.DBPath,
				"backend_url", cfg.BackendURL)

			// ── Deletion journal ───────────────────────────────────────────
			journal, closeJournal, err := ctx.openJournal(runCtx)
			if err != nil {
				return err
			}
			defer closeJournal()

			// ── Session ────────────────────────────────────────────────────
			sess, client, err := ctx.newSession(journal)
			if err != nil {
				return err
			}
			defer sess.Close()

			mode := content.Mode(cfg.Mode)
			if err := sess.LoadServerInfo(runCtx); err != nil {
				slog.Warn("load server info", "error", err)
			}
			if err := sess.StartRefresh(mode); err != nil {
				return err
			}

			// ── Scheduler ──────────────────────────────────────────────────
			sched := scheduler.New()
			if cfg.RefreshSchedule != "" {
				if err := sched.Schedule(scheduler.JobRefresh, cfg.RefreshSchedule, func() {
					slog.Info("scheduled refresh triggered")
					if sess.Deletion().Deleting() {
						slog.Warn("scheduled refresh skipped: batch delete running")
						return
					}
					if err := sess.Refresh(runCtx, sess.Content().State().Mode); err != nil {
						slog.Error("scheduled refresh failed", "error", err)
					}
				}); err != nil {
					slog.Warn("invalid refresh schedule", "expr", cfg.RefreshSchedule, "error", err)
				}
			}
			if cfg.HistoryRetentionDays > 0 {
				retention := time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour
				if err := sched.Schedule(scheduler.JobRetention, "0 3 * * *", func() {
					if _, err := journal.Purge(runCtx, time.Now().Add(-retention)); err != nil {
						slog.Error("history purge failed", "error", err)
					}
				}); err != nil {
					slog.Warn("failed to register history purge job", "error", err)
				}
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
			}()

			// ── HTTP server ────────────────────────────────────────────────
			srv := api.New(cfg.HTTPAddr, api.Deps{
				Session:    sess,
				Journal:    journal,
				Sched:      sched,
				BackendURL: client.BaseURL(),
				Version:    version,
			})
			if err := srv.Run(runCtx); err != nil {
				return err
			}
			slog.Info("reclaim stopped")
			return nil
		},
	}
}
