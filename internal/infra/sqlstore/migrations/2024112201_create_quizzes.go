package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"quiz-attempt-service/internal/infra/sqlstore"
)

// Migrations is the schema history shared by the postgres and sqlite drivers.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewCreateTable().
				Model((*sqlstore.QuizRow)(nil)).
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropTable().
				Model((*sqlstore.QuizRow)(nil)).
				IfExists().
				Exec(ctx)
			return err
		},
	)
}
