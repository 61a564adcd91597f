// Command tms syncs a local taskmaster task file onto a GitHub Projects v2
// board. The board mirrors the file one way; the file is never written.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/config"
	"github.com/5dlabs/taskmaster-sync/internal/types"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

// Exit codes per the CLI contract. Partial-success runs exit 0; consumers
// inspect the errors array in the JSON record.
const (
	exitOK        = 0
	exitFatal     = 1
	exitBootstrap = 2
	exitAuth      = 3
	exitConfig    = 4
)

var (
	jsonOutput bool
	quietFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "tms",
	Short: "Sync taskmaster tasks to GitHub Projects",
	Long: `tms projects a local taskmaster task file onto a GitHub Projects v2 board.

The sync is one-way: the task file is the source of truth and the board is a
mirror. Items are identified across runs by the TM_ID board field, so the
board survives a lost state file. Local "done" maps to the QA Review status;
only a human moves items to Done.

Authentication comes from the GitHub CLI (gh auth login); no credentials are
stored by tms.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrConfig, err)
		}
		if config.GetBool("json") {
			jsonOutput = true
		}
		if jsonOutput || quietFlag || config.GetBool("quiet") {
			ui.SetQuiet(true)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress status output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "project", Title: "Project Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ui.Errorf("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds onto the documented exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrAuth):
		return exitAuth
	case errors.Is(err, types.ErrBoardNotFound), errors.Is(err, types.ErrSchema):
		return exitBootstrap
	case errors.Is(err, types.ErrConfig), errors.Is(err, types.ErrParse):
		return exitConfig
	default:
		return exitFatal
	}
}
