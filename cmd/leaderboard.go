package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meridian-ml/podium/internal/leaderboard"
)

var leaderboardLimit int

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard <competition-slug>",
	Short: "Print a competition leaderboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		comp, err := env.Store.GetCompetitionBySlug(ctx, args[0])
		if err != nil {
			return err
		}

		entries, err := leaderboard.New(env.Store, nil).Compute(ctx, comp, leaderboardLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no scored submissions")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tPARTICIPANT\tBEST\tSUBMISSIONS\tLAST")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%.6f\t%d\t%s\n",
				e.Rank, e.DisplayName, e.BestScore, e.SubmissionCount,
				e.LastSubmission.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

func init() {
	leaderboardCmd.Flags().IntVar(&leaderboardLimit, "limit", 0, "maximum entries to print (0 = all)")
	rootCmd.AddCommand(leaderboardCmd)
}
