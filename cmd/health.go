package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health [name]",
	Short: "Show lifetime call statistics per configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		configs, err := env.Store.ListActiveConfigs(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			filtered := configs[:0]
			for _, c := range configs {
				if c.Name == args[0] {
					filtered = append(filtered, c)
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("no active configuration named %q", args[0])
			}
			configs = filtered
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tCALLS\tFAILURES\tSUCCESS RATE\tLAST USED")
		for _, c := range configs {
			lastUsed := "-"
			if c.LastUsedAt != nil {
				lastUsed = c.LastUsedAt.Format(time.RFC3339)
			}
			total := c.SuccessCount + c.FailureCount
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f%%\t%s\n",
				c.Name, env.Monitor.CheckHealth(c.Name), total, c.FailureCount, c.SuccessRate()*100, lastUsed)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
