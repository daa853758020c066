package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var deadLettersLimit int

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List scoring jobs whose retries were exhausted",
	Long:  "Prints the dead-letter records written when a submission could not be scored after all retry attempts, newest first, with the real underlying error.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		letters, err := st.ListDeadLetters(ctx, deadLettersLimit)
		if err != nil {
			return err
		}
		if len(letters) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no dead letters")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SUBMISSION\tTYPE\tATTEMPTS\tFAILED AT\tERROR")
		for _, d := range letters {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				d.SubmissionID, d.ErrorType, d.Attempts,
				d.CreatedAt.Format("2006-01-02 15:04:05"), d.Error,
			)
		}
		return w.Flush()
	},
}

func init() {
	deadLettersCmd.Flags().IntVar(&deadLettersLimit, "limit", 50, "maximum records to print")
	rootCmd.AddCommand(deadLettersCmd)
}
