package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/config"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
	"github.com/5dlabs/taskmaster-sync/internal/watcher"
)

var watchDebounceMS int

var watchCmd = &cobra.Command{
	Use:     "watch <tag> <board-ref>",
	GroupID: "sync",
	Short:   "Watch the task file and sync on change",
	Long: `Watch the task file and run a sync after every change, debounced so a
burst of edits triggers one run. Changes arriving during a run coalesce into
a single follow-up run.

A failing run is logged and watching continues, with growing backoff when
runs keep failing. Ctrl-C shuts down after the in-flight run finishes.

Examples:
  tms watch master 42
  tms watch master 42 --debounce 1000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, args[0], args[1])
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchDebounceMS, "debounce", 0, "debounce window in milliseconds (default 400)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, tag, boardRef string) error {
	dir, err := taskmasterDir()
	if err != nil {
		return err
	}

	debounce := config.GetDuration("debounce")
	if watchDebounceMS > 0 {
		debounce = time.Duration(watchDebounceMS) * time.Millisecond
	}

	// Run once up front so the board is current before waiting for edits.
	if err := runSync(ctx, tag, boardRef); err != nil {
		ui.Errorf("initial sync failed: %v", err)
	}

	driver, err := watcher.New(tasksFilePath(dir), func(ctx context.Context) error {
		return runSync(ctx, tag, boardRef)
	}, watcher.Options{
		Debounce:   debounce,
		BackoffCap: config.GetDuration("watch-backoff-cap"),
	})
	if err != nil {
		return err
	}

	err = driver.Run(ctx)
	ui.Infof("Watch stopped")
	return err
}
