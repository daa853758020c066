package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-ml/podium/internal/scorer"
	"github.com/meridian-ml/podium/internal/storage"
)

var (
	scoreSolution   string
	scoreMetric     string
	scoreIDCol      string
	scorePredCol    string
	scoreTargetCol  string
	scoreShowErrors bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <submission.csv>",
	Short: "Score a submission file against a solution file",
	Long:  "Validates and scores one prediction CSV directly from disk, without touching the store or queue. Intended for local checks before uploading.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		solution, err := os.ReadFile(scoreSolution)
		if err != nil {
			return eris.Wrap(err, "read solution file")
		}
		submission, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read submission file")
		}

		blobs := storage.NewMemory()
		if _, err := blobs.Save(cmd.Context(), "solution.csv", solution); err != nil {
			return eris.Wrap(err, "stage solution")
		}

		sc, err := scorer.New(blobs, scorer.Config{
			SolutionKey:      "solution.csv",
			Metric:           scoreMetric,
			IDColumn:         scoreIDCol,
			PredictionColumn: scorePredCol,
			TargetColumn:     scoreTargetCol,
		})
		if err != nil {
			return err
		}

		res := sc.Score(cmd.Context(), submission)
		if !res.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "FAILED (%s): %s\n", res.Kind, res.ErrorMessage)
			if scoreShowErrors && res.Validation != nil {
				for _, issue := range res.Validation.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", issue.Code, issue.Message)
				}
			}
			return eris.New("submission failed scoring")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %.6f\n", scoreMetric, *res.Score)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreSolution, "solution", "", "path to the solution CSV (required)")
	scoreCmd.Flags().StringVar(&scoreMetric, "metric", "", "evaluation metric name (required)")
	scoreCmd.Flags().StringVar(&scoreIDCol, "id-column", "id", "id column name")
	scoreCmd.Flags().StringVar(&scorePredCol, "prediction-column", "prediction", "prediction column name")
	scoreCmd.Flags().StringVar(&scoreTargetCol, "target-column", "target", "solution target column name")
	scoreCmd.Flags().BoolVar(&scoreShowErrors, "show-errors", false, "print every validation error, not just the summary")
	_ = scoreCmd.MarkFlagRequired("solution")
	_ = scoreCmd.MarkFlagRequired("metric")
	rootCmd.AddCommand(scoreCmd)
}
