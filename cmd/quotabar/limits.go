package main

import (
	"github.com/spf13/cobra"
)

func newLimitsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Inspect or reset the refresh rate limiter",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset [key]",
		Short: "Clear rate-limiter state for one key, or all keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.limiter.Reset(args[0])
				cmd.Printf("Rate limit for %q cleared.\n", args[0])
				return nil
			}
			a.limiter.ResetAll()
			cmd.Println("All rate limits cleared.")
			return nil
		},
	})

	return cmd
}
