package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var missingExtensionsCmd = &cobra.Command{
	Use:   "list-missing-extensions",
	Short: "List extensions in the repository profile that are not installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		missing, err := a.orch.MissingExtensions(a.cfg.Profile)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			fmt.Println("All synced extensions are installed.")
			return nil
		}
		for _, ext := range missing {
			if ext.Version != "" {
				fmt.Printf("%s (%s)\n", ext.ID, ext.Version)
			} else {
				fmt.Println(ext.ID)
			}
		}
		return nil
	},
}
