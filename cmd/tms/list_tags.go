package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/5dlabs/taskmaster-sync/internal/taskfile"
	"github.com/5dlabs/taskmaster-sync/internal/ui"
)

var listTagsCmd = &cobra.Command{
	Use:     "list-tags",
	GroupID: "sync",
	Short:   "List the tags in the task file",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := taskmasterDir()
		if err != nil {
			return err
		}
		tags, err := taskfile.Tags(tasksFilePath(dir))
		if err != nil {
			return err
		}
		if jsonOutput {
			data, err := json.Marshal(tags)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		for _, t := range tags {
			ui.Infof("%s", t)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listTagsCmd)
}
