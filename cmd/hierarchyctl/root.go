package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configFile string
	timeout    time.Duration
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "hierarchyctl",
		Short:         "Operator tool for the category hierarchy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "overall command timeout")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print machine readable JSON")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newRepairCmd(opts))
	cmd.AddCommand(newResolveOrphanCmd(opts))
	cmd.AddCommand(newMoveCmd(opts))
	cmd.AddCommand(newTreeCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
