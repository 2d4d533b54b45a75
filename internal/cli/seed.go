package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/quizfile"
	"quiz-attempt-service/internal/infra/sqlstore"
	"quiz-attempt-service/internal/infra/sqlstore/migrations"
)

// NewSeedCmd publishes quizzes from a YAML file into the SQL store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from YAML into the postgres or sqlite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Quiz.SeedFile
			}
			if file == "" {
				return fmt.Errorf("no quiz file: pass --file or set quiz.seed_file")
			}
			quizzes, err := quizfile.Load(file)
			if err != nil {
				return err
			}

			db, err := openSQL(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Apply(ctx, db); err != nil {
				return err
			}
			if err := saveAll(ctx, sqlstore.New(db), quizzes); err != nil {
				return err
			}
			for _, q := range quizzes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d min\n", q.Code, q.Title, q.DurationMinutes)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with quizzes")
	return cmd
}
