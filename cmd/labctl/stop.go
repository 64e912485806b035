package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <handle>",
	Short: "Stop a lab by its remote handle",
	Long:  "Stop a lab left running by an earlier session, using the handle printed when it started.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctrl, cleanup, err := newController(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := ctrl.Stop(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", args[0])
	return nil
}
