package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bicodown/pkg/checkpoint"
	"bicodown/pkg/ui"
)

var clearCheckpoint bool

// checkpointsCmd represents the checkpoints command
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints [identifier]",
	Short: "List interrupted harvests that can be resumed",
	Long: `List the saved checkpoints, or show one in detail. A checkpoint is removed
automatically when its harvest completes; --clear removes it by hand.`,
	Example: `  bicodown checkpoints
  bicodown checkpoints BV1xx411c7mD --clear`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.Flags().BoolVar(&clearCheckpoint, "clear", false, "delete the checkpoint of the given identifier")
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	dir, err := checkpoint.Dir()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		cpm, err := checkpoint.NewManagerInDir(dir, args[0])
		if err != nil {
			return err
		}
		if !cpm.Exists() {
			return fmt.Errorf("no checkpoint for %s", args[0])
		}
		if clearCheckpoint {
			if err := cpm.Delete(); err != nil {
				return err
			}
			ui.PrintSuccess("Checkpoint removed: " + args[0])
			return nil
		}
		return printCheckpoint(cpm)
	}

	ids, err := checkpoint.List(dir)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ui.PrintInfo("No checkpoints", dir)
		return nil
	}

	ui.PrintHighlight("Resumable harvests")
	for _, id := range ids {
		cpm, err := checkpoint.NewManagerInDir(dir, id)
		if err != nil {
			return err
		}
		if err := printCheckpoint(cpm); err != nil {
			ui.PrintWarning(id, err)
		}
	}
	fmt.Fprintln(ui.Output, "\nContinue one with: bicodown harvest <identifier> --resume")
	return nil
}

func printCheckpoint(cpm *checkpoint.Manager) error {
	info, err := cpm.Info()
	if err != nil {
		return err
	}
	age, _ := info["age"].(time.Duration)
	fmt.Fprintf(ui.Output, "%s  %v comments saved, page %v, updated %s ago (run %v)\n",
		ui.Cyan(fmt.Sprint(info["identifier"])), info["downloaded"], info["last_page"],
		ui.FormatDuration(age.Truncate(time.Second)), info["run_id"])
	return nil
}
