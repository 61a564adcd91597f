package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/config"
	"github.com/5dlabs/taskmaster-sync/internal/engine"
	"github.com/5dlabs/taskmaster-sync/internal/fields"
	"github.com/5dlabs/taskmaster-sync/internal/state"
	"github.com/5dlabs/taskmaster-sync/internal/syncconfig"
	"github.com/5dlabs/taskmaster-sync/internal/taskfile"
	"github.com/5dlabs/taskmaster-sync/internal/types"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

var (
	syncDryRun     bool
	syncFull       bool
	syncAsItems    bool
	syncInBody     bool
	syncKeepOrphan bool
	syncStrict     bool
)

var syncCmd = &cobra.Command{
	Use:     "sync <tag> <board-ref>",
	GroupID: "sync",
	Short:   "Sync a tag's tasks to a project board",
	Long: `Sync one tag of the task file to a GitHub Projects v2 board.

The board reference is the project number, or 0 to auto-create a new board
with the required field schema. Only tasks that changed since the last run
are touched; pass --full-sync to rewrite every item.

Orphaned items (tracked on the board but gone from the file) are deleted by
default; --keep-orphans leaves them.

Examples:
  tms sync master 42                 # incremental sync to project #42
  tms sync master 0                  # create a board, then sync to it
  tms sync master 42 --dry-run       # show the plan without mutating
  tms sync master 42 --full-sync     # rewrite every item's fields
  tms sync master 42 --json          # machine-readable statistics on stdout`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSync(ctx, args[0], args[1])
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "compute the plan but do not mutate")
	syncCmd.Flags().BoolVar(&syncFull, "full-sync", false, "ignore cached fingerprints and rewrite every item")
	syncCmd.Flags().BoolVar(&syncAsItems, "subtasks-as-items", false, "create one board item per subtask")
	syncCmd.Flags().BoolVar(&syncInBody, "subtasks-in-body", false, "render subtasks as a checklist in the parent body")
	syncCmd.Flags().BoolVar(&syncKeepOrphan, "keep-orphans", false, "keep board items whose task was removed")
	syncCmd.Flags().BoolVar(&syncStrict, "strict", false, "fail on unknown field values and missing board fields")
	syncCmd.MarkFlagsMutuallyExclusive("subtasks-as-items", "subtasks-in-body")
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, tag, boardRef string) error {
	start := time.Now()

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
	number, err := parseBoardRef(boardRef)
	if err != nil {
		return err
	}

	loaded, err := taskfile.Load(tasksFilePath(dir), tag, taskfile.Options{Strict: syncStrict})
	if err != nil {
		return err
	}
	for _, w := range loaded.Warnings {
		ui.Warnf("%s", w)
	}

	resolver, err := loadResolver(dir)
	if err != nil {
		return err
	}
	client := newClient()

	mapping, _ := cfg.Mapping(tag)
	repository := mapping.Repository
	if repository == "" {
		repository = detectRepository()
	}

	autoCreate := number == 0 || config.GetBool("auto-create-project")
	project, created, err := engine.EnsureProject(ctx, client, owner, number,
		autoCreate, boardTitle(repository, tag), resolver.OptionNames())
	if err != nil {
		return err
	}
	if created {
		ui.Successf("Created board %q (#%d)", project.Title, project.Number)
		ui.Mutedf("%s", project.URL)
		mapping.ProjectNumber = project.Number
		mapping.ProjectID = project.ID
		if mapping.Repository == "" {
			mapping.Repository = repository
		}
		cfg.SetMapping(tag, mapping)
		if err := cfg.Save(); err != nil {
			return err
		}
	}

	// One sync per tag at a time; a second invocation fails fast instead of
	// corrupting the state file.
	lock := flock.New(filepath.Join(dir, fmt.Sprintf(".sync-%s.lock", tag)))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another sync for tag %q is in progress", tag)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := state.Load(dir, tag)
	if err != nil {
		return err
	}

	eng := engine.New(client, fields.New(client, project.ID), resolver, store,
		project, mapping, tag, engine.Options{
			DryRun:       syncDryRun,
			FullSync:     syncFull,
			Mode:         subtaskMode(mapping),
			KeepOrphans:  syncKeepOrphan || config.GetBool("keep-orphans"),
			StrictFields: syncStrict,
		})

	stats, runErr := eng.Run(ctx, loaded.Set)

	if runErr == nil && !syncDryRun {
		cfg.TouchLastSync(tag, time.Now())
		if err := cfg.Save(); err != nil {
			ui.Warnf("could not record last sync time: %v", err)
		}
	}

	report := engine.NewReport(stats, project.Number, project.ID, tag, time.Since(start))
	if jsonOutput {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printSummary(stats, syncDryRun)
	}

	return runErr
}

// subtaskMode resolves the effective mode: CLI flags win over the project
// mapping, which defaults to nested.
func subtaskMode(mapping syncconfig.ProjectMapping) types.SubtaskMode {
	switch {
	case syncAsItems:
		return types.SubtasksSeparate
	case syncInBody:
		return types.SubtasksNested
	case mapping.SubtaskMode != "":
		return mapping.SubtaskMode
	default:
		return types.SubtasksNested
	}
}

func printSummary(stats *engine.Statistics, dryRun bool) {
	if dryRun {
		ui.Infof("Dry run (no changes made):")
	}
	ui.Successf("Sync complete: %d created, %d updated, %d deleted, %d skipped",
		stats.Created, stats.Updated, stats.Deleted, stats.Skipped)
	if len(stats.Errors) > 0 {
		ui.Errorf("%d operations failed:", len(stats.Errors))
		for _, e := range stats.Errors {
			if e.TaskID != "" {
				ui.Errorf("  %s (%s): %s", e.TaskID, e.Phase, e.Message)
			} else {
				ui.Errorf("  (%s): %s", e.Phase, e.Message)
			}
		}
	}
}
