package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/engine"
	"github.com/5dlabs/taskmaster-sync/internal/types"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

var errMissingOwner = fmt.Errorf("%w: no owner given and no organization configured", types.ErrConfig)

var setupProjectCmd = &cobra.Command{
	Use:     "setup-project <board-ref>",
	GroupID: "project",
	Short:   "Ensure a board carries the required fields and options",
	Long: `Ensure an existing board carries the fields and status options the sync
needs. Safe to re-run; existing fields are left alone.

Examples:
  tms setup-project 42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSetupProject(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(setupProjectCmd)
}

func runSetupProject(ctx context.Context, boardRef string) error {
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

	var agentNames []string
	if resolver, err := loadResolver(dir); err == nil {
		agentNames = resolver.OptionNames()
	}

	client := newClient()
	project, err := client.GetProject(ctx, owner, number)
	if err != nil {
		return err
	}
	ui.Infof("Setting up board %q (#%d)", project.Title, project.Number)

	if err := engine.SetupFields(ctx, client, project.ID, agentNames); err != nil {
		if errors.Is(err, types.ErrSchema) {
			return err
		}
		return fmt.Errorf("%w: %v", types.ErrSchema, err)
	}
	ui.Successf("Board is ready: tms sync <tag> %d", project.Number)
	return nil
}
