package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("Starting database setup")
		dbManager, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		dbManager.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "Database setup finished successfully.")
		return nil
	},
}
