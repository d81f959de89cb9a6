package main

import (
	"fmt"

	"github.com/lazyyq/vscode-sync-settings/internal/orchestrator"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active profile, repository state and pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		repo, err := a.handle.Repo()
		if err != nil {
			return err
		}
		st, err := repo.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Profile:    %s\n", a.cfg.Profile)
		if st.Head != "" {
			fmt.Printf("Repository: %s (branch %s, commit %s)\n", repo.Dir, st.Branch, st.Head)
		} else {
			fmt.Printf("Repository: %s (branch %s)\n", repo.Dir, st.Branch)
		}
		if !st.Clean {
			fmt.Println("            uncommitted changes in working tree")
		}
		if st.Unpushed {
			fmt.Println("            local commits not yet pushed")
		}

		res, err := a.orch.Run(cmd.Context(), orchestrator.KindReview, a.cfg.Profile)
		if err != nil {
			return err
		}
		if res.Err != nil {
			return res.Err
		}
		if res.Patch.Empty() {
			fmt.Println("Changes:    none since last sync")
		} else {
			fmt.Printf("Changes:    %d pending (run 'review' to inspect)\n", len(res.Patch.Entries))
		}
		return nil
	},
}
