package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/engine"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

var cleanDelete bool

var cleanDuplicatesCmd = &cobra.Command{
	Use:     "clean-duplicates <board-ref>",
	GroupID: "project",
	Short:   "Report or remove items sharing a TM_ID",
	Long: `Scan a board for duplicate items: multiple items carrying the same TM_ID,
and untracked items whose title is shadowed by a tracked item. Without
--delete the duplicates are only reported.

With --delete, the earliest item per TM_ID survives and the rest are
removed, along with the shadowed untracked items.

Examples:
  tms clean-duplicates 42           # report only
  tms clean-duplicates 42 --delete  # remove duplicates`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runCleanDuplicates(ctx, args[0])
	},
}

func init() {
	cleanDuplicatesCmd.Flags().BoolVar(&cleanDelete, "delete", false, "actually delete the duplicates")
	rootCmd.AddCommand(cleanDuplicatesCmd)
}

func runCleanDuplicates(ctx context.Context, boardRef string) error {
	number, err := parseBoardRef(boardRef)
	if err != nil {
		return err
	}
	dir, err := taskmasterDir()
	if err != nil {
		return err
	}
	cfg, err := loadSyncConfig(dir)
	if err != nil {
		return err
	}
	owner, err := requireOrganization(cfg)
	if err != nil {
		return err
	}

	client := newClient()
	project, err := client.GetProject(ctx, owner, number)
	if err != nil {
		return err
	}
	items, err := client.ListItems(ctx, project.ID)
	if err != nil {
		return err
	}

	rep := engine.FindDuplicates(items)
	ui.Infof("Board %q: %d items", project.Title, rep.Total)

	if !rep.HasDuplicates() {
		ui.Successf("No duplicates found")
		return nil
	}

	for _, tmid := range rep.TMIDs() {
		ui.Infof("TM_ID %s: %d copies", tmid, len(rep.ByTMID[tmid]))
	}
	for _, it := range rep.Shadowed {
		ui.Infof("Untracked item shadows %q", it.Title)
	}

	if !cleanDelete {
		ui.Mutedf("run with --delete to remove these duplicates")
		return nil
	}

	deleted, errs := engine.CleanDuplicates(ctx, client, project.ID, rep)
	for _, e := range errs {
		ui.Errorf("%v", e)
	}
	ui.Successf("Removed %d duplicate items", deleted)
	return nil
}
