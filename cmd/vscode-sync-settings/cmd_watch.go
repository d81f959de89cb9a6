package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lazyyq/vscode-sync-settings/internal/scheduler"
	"github.com/lazyyq/vscode-sync-settings/internal/watcher"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run in the background: cron syncs plus settings.yml watching",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		var out io.Writer = os.Stderr
		if a.cfg.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   a.cfg.LogFile,
				MaxSize:    5, // MB
				MaxBackups: 3,
			}
		}
		logger := log.New(out, "[watch] ", log.LstdFlags)

		sched := scheduler.New(a.orch, logger)
		if err := sched.Arm(a.cfg); err != nil {
			// A bad cron expression should not kill the daemon; the
			// watcher below still re-arms after the next config edit.
			logger.Printf("scheduler: %v", err)
		}
		defer sched.Stop()

		reload := func() {
			if _, err := a.handle.Reload(); err != nil {
				logger.Printf("reload: %v", err)
				return
			}
			cfg, err := a.store.Get()
			if err != nil {
				logger.Printf("reload: %v", err)
				return
			}
			a.cfg = cfg
			if err := sched.Arm(cfg); err != nil {
				logger.Printf("scheduler: %v", err)
			}
			logger.Printf("configuration reloaded")
		}

		w, err := watcher.New(a.store.Path(), watcher.DefaultDelay, reload, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Printf("watching %s", a.store.Path())
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
