package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pandad/internal/logging"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected transceivers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		serials, err := newDriver(cfg, logging.New(cfg.LogLevel)).List()
		if err != nil {
			return err
		}
		if len(serials) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no pandas found")
			return nil
		}
		for _, s := range serials {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}
