package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCompetitions string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("schema migrated", zap.String("driver", cfg.Store.Driver))

		if migrateCompetitions != "" {
			env := &scoringEnv{Store: st}
			if err := seedCompetitions(ctx, env, migrateCompetitions); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateCompetitions, "competitions", "", "YAML file of competitions to seed after migrating")
	rootCmd.AddCommand(migrateCmd)
}
