package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the match cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired cache entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		stack, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		removed, err := stack.Service.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <cv_id> <job_id>",
	Short: "Drop the cached match for a CV and job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		removed, err := stack.Service.Invalidate(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries for %s/%s\n", removed, args[0], args[1])
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd, cacheInvalidateCmd)
}
