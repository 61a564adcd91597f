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

var createProjectOrg string

var createProjectCmd = &cobra.Command{
	Use:     "create-project <title>",
	GroupID: "project",
	Short:   "Create a new project board with the required fields",
	Long: `Create a new GitHub Projects v2 board and provision the field schema the
sync needs: TM_ID, Dependencies, Test Strategy, Priority, Agent, and the
QA Review status option.

The owner defaults to the organization in sync-config.json.

Examples:
  tms create-project "Backend Tasks"
  tms create-project "Backend Tasks" --org myorg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runCreateProject(ctx, args[0])
	},
}

func init() {
	createProjectCmd.Flags().StringVar(&createProjectOrg, "org", "", "board owner (defaults to configured organization)")
	rootCmd.AddCommand(createProjectCmd)
}

func runCreateProject(ctx context.Context, title string) error {
	owner := createProjectOrg
	var agentNames []string

	if dir, err := taskmasterDir(); err == nil {
		if resolver, err := loadResolver(dir); err == nil {
			agentNames = resolver.OptionNames()
		}
		if owner == "" {
			if cfg, err := loadSyncConfig(dir); err == nil {
				owner = cfg.Organization
			}
		}
	}
	if owner == "" {
		return errMissingOwner
	}

	project, err := engine.Bootstrap(ctx, newClient(), owner, title, agentNames)
	if err != nil {
		return err
	}
	ui.Successf("Created board %q (#%d)", project.Title, project.Number)
	ui.Mutedf("%s", project.URL)
	ui.Infof("Next: tms sync master %d", project.Number)
	return nil
}
