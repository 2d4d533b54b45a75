package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/infra/sqlstore"
)

func init() {
	models := []interface{}{
		(*sqlstore.SessionRow)(nil),
		(*sqlstore.ClaimRow)(nil),
		(*sqlstore.SubmissionRow)(nil),
	}

	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, model := range models {
				if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
					return err
				}
			}
			// The reaper scans started sessions by deadline.
			_, err := db.NewCreateIndex().
				Model((*sqlstore.SessionRow)(nil)).
				Index("attempt_sessions_status_deadline_idx").
				Column("status", "deadline").
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			for i := len(models) - 1; i >= 0; i-- {
				if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
