package main

import (
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/quotabar/quotabar/internal/config"
	"github.com/quotabar/quotabar/internal/core"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh and print the snapshot on the configured interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, a)
		},
	}
}

func runWatch(cmd *cobra.Command, a *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A settings change invalidates the cache so the next tick re-resolves
	// under the new configuration.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(config.ConfigDir()); err != nil {
		log.Printf("[watch] cannot watch config dir: %v", err)
	}

	interval := time.Duration(a.cfg.RefreshIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	show := func(force bool) {
		snap := a.orch.GetUsage(ctx, core.Request{Force: force})
		printSnapshot(cmd, snap)
		cmd.Println()
	}

	show(false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			show(false)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(config.ConfigPath()) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load()
			if err != nil {
				log.Printf("[watch] reloading settings: %v", err)
				continue
			}
			a.cfg = cfg
			a.cache.Invalidate()
			if next := time.Duration(cfg.RefreshIntervalSeconds) * time.Second; next != interval {
				interval = next
				ticker.Reset(interval)
			}
			cmd.Println(dimStyle.Render("settings changed, cache cleared"))
			show(false)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] watcher error: %v", err)
		}
	}
}
