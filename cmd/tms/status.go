package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/state"
	"github.com/5dlabs/taskmaster-sync/internal/syncconfig"
	"github.com/5dlabs/taskmaster-sync/internal/taskfile"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status [tag]",
	GroupID: "sync",
	Short:   "Show sync state for a tag",
	Long: `Show the sync state for a tag: the mapped board, tracked item count, and
last sync time. With no tag, every tag in the task file is shown.

Examples:
  tms status
  tms status master --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag := ""
		if len(args) == 1 {
			tag = args[0]
		}
		return runStatus(tag)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type tagStatus struct {
	Tag           string `json:"tag"`
	ProjectNumber int    `json:"project_number,omitempty"`
	Tasks         int    `json:"tasks"`
	Tracked       int    `json:"tracked"`
	LastSync      string `json:"last_sync,omitempty"`
}

func runStatus(tag string) error {
	dir, err := taskmasterDir()
	if err != nil {
		return err
	}
	cfg, err := loadSyncConfig(dir)
	if err != nil {
		return err
	}

	tags := []string{tag}
	if tag == "" {
		tags, err = taskfile.Tags(tasksFilePath(dir))
		if err != nil {
			return err
		}
	}

	var all []tagStatus
	for _, t := range tags {
		st := tagStatus{Tag: t}
		if mapping, ok := cfg.Mapping(t); ok {
			st.ProjectNumber = mapping.ProjectNumber
			if mapping.LastSync != nil {
				st.LastSync = mapping.LastSync.Format("2006-01-02 15:04:05")
			}
		}
		if loaded, err := taskfile.Load(tasksFilePath(dir), t, taskfile.Options{}); err == nil {
			st.Tasks = len(loaded.Set.Tasks)
		}
		if store, err := state.Load(dir, t); err == nil {
			st.Tracked = store.Len()
		}
		all = append(all, st)
	}

	if jsonOutput {
		data, err := json.Marshal(all)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for _, st := range all {
		if st.ProjectNumber > 0 {
			ui.Infof("%s → project #%d", st.Tag, st.ProjectNumber)
		} else {
			ui.Infof("%s → (no board mapped in %s)", st.Tag, syncconfig.FileName)
		}
		ui.Mutedf("%d tasks, %d tracked items", st.Tasks, st.Tracked)
		if st.LastSync != "" {
			ui.Mutedf("last sync %s", st.LastSync)
		}
	}
	return nil
}
