package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Inspect learned detection points",
}

var (
	pointsLimit   int
	pointsExclude []string
)

var pointsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest point names for the next inspection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		suggestions, err := env.Points.Suggest(ctx, pointsExclude, pointsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "POINT\tSOURCE\tCONFIDENCE\tUSAGE\tAVG VALUE")
		for _, s := range suggestions {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%.3f\n",
				s.Name, s.Source, s.Confidence, s.UsageCount, s.AvgValue)
		}
		return w.Flush()
	},
}

var pointsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learned point statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Points.Stats(ctx, pointsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "POINT\tUSAGE\tAVG VALUE\tINITIAL\tRECHECK\tLAST USED")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%.3f\t%d\t%d\t%s\n",
				s.Name, s.UsageCount, s.AvgValue, s.InitialCount, s.RecheckCount,
				s.LastUsedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	pointsCmd.PersistentFlags().IntVar(&pointsLimit, "limit", 20, "max rows to return")
	pointsSuggestCmd.Flags().StringSliceVar(&pointsExclude, "exclude", nil, "point names to skip")
	pointsCmd.AddCommand(pointsSuggestCmd, pointsStatsCmd)
	rootCmd.AddCommand(pointsCmd)
}
