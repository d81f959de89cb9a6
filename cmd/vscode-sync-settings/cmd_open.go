package main

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/lazyyq/vscode-sync-settings/internal/paths"
	"github.com/spf13/cobra"
)

var openPrint bool

var openCmd = &cobra.Command{
	Use:       "open {profile-dir|profile-settings|repository|settings}",
	Short:     "Open a synced location in the editor",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"profile-dir", "profile-settings", "repository", "settings"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		repo, err := a.handle.Repo()
		if err != nil {
			return err
		}

		var target string
		switch args[0] {
		case "profile-dir":
			target = repo.ProfileDir(a.cfg.Profile)
		case "profile-settings":
			target = filepath.Join(repo.ProfileDir(a.cfg.Profile), "settings.json")
		case "repository":
			target = repo.Dir
		case "settings":
			target = paths.ConfigFile(a.confDir)
		default:
			return fmt.Errorf("unknown location %q", args[0])
		}

		if openPrint {
			fmt.Println(target)
			return nil
		}
		if out, err := exec.Command(a.cfg.Editor.Command, target).CombinedOutput(); err != nil {
			return fmt.Errorf("opening %s: %s", target, out)
		}
		return nil
	},
}

func init() {
	openCmd.Flags().BoolVar(&openPrint, "print", false, "print the path instead of opening it")
}
