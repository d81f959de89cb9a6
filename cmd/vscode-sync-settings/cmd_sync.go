package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/lazyyq/vscode-sync-settings/internal/orchestrator"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Apply the repository's profile state to local settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, orchestrator.KindDownload)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Commit and push local settings changes to the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, orchestrator.KindUpload)
	},
}

var reviewCmd = &cobra.Command{
	Use:     "review",
	Aliases: []string{"view-differences"},
	Short:   "Show the differences between local settings and the last sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, orchestrator.KindReview)
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove all synced settings and extensions locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			var confirmed bool
			err := huh.NewConfirm().
				Title("Remove all synced settings and extensions from this machine?").
				Description("The repository is left untouched.").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled.")
				return nil
			}
		}
		return runSync(cmd, orchestrator.KindReset)
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip confirmation")
}

func runSync(cmd *cobra.Command, kind orchestrator.Kind) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	res, err := a.orch.Run(cmd.Context(), kind, a.cfg.Profile)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	if res.Message != "" {
		a.notify(msgMinor, "%s: %s", kind, res.Message)
	}
	if !res.Patch.Empty() {
		if kind == orchestrator.KindReview {
			fmt.Println(res.Patch.String())
		} else {
			a.notify(msgMajor, "%s: %d change(s) applied", kind, len(res.Patch.Entries))
			a.notify(msgInfo, "%s", res.Patch.String())
		}
	}
	return nil
}
