package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage sync profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles in the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		names, err := a.mgr.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No profiles yet. Create one with 'profile create <name>'.")
			return nil
		}
		for _, name := range names {
			if name == a.cfg.Profile {
				fmt.Printf("* %s\n", name)
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mgr.Create(args[0]); err != nil {
			return err
		}
		a.notify(msgMajor, "Created profile %s", args[0])
		return nil
	},
}

var profileDeleteYes bool

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile and its repository directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if !profileDeleteYes {
			var confirmed bool
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Delete profile %q and its repository directory?", args[0])).
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
		if err := a.mgr.Delete(args[0]); err != nil {
			return err
		}
		a.notify(msgMajor, "Deleted profile %s", args[0])
		return nil
	},
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Switch the active profile and download its state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mgr.SwitchTo(cmd.Context(), args[0], a.orch); err != nil {
			return err
		}
		a.notify(msgMajor, "Switched to profile %s", args[0])
		return nil
	},
}

func init() {
	profileDeleteCmd.Flags().BoolVarP(&profileDeleteYes, "yes", "y", false, "skip confirmation")
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileSwitchCmd)
}
