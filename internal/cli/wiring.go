package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/events"
	"quiz-attempt-service/internal/infra/memory"
	pgloader "quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/infra/quizfile"
	redisstore "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/sqlstore"
	"quiz-attempt-service/internal/infra/sqlstore/migrations"
)

// deps holds the wired service graph and what must be closed on shutdown.
type deps struct {
	manager   *app.SessionManager
	publisher *events.Publisher
	// subscriber is set when events stay in-process.
	subscriber message.Subscriber
	closers    []func() error
}

func (d *deps) Close(logger *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Warn("shutdown close failed", "error", err)
		}
	}
}

type quizSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}
	fail := func(err error) (*deps, error) {
		d.Close(logger)
		return nil, err
	}

	seed, err := seedQuizzes(cfg)
	if err != nil {
		return fail(err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	var (
		store  app.AttemptStore
		loader memory.QuizLoader
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres, config.DriverSQLite:
		db, err := openSQL(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, db.Close)
		if err := migrations.Apply(ctx, db); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		sqlStore := sqlstore.New(db)
		if err := saveAll(ctx, sqlStore, seed); err != nil {
			return fail(err)
		}
		store, loader = sqlStore, sqlStore
	case config.DriverRedis:
		store = redisstore.NewSessionStore(redisClient)
	default:
		store = memory.NewSessionStore()
	}

	if loader == nil {
		if cfg.Postgres.URL != "" {
			// Sessions live in redis; quiz content comes from the authoring database.
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fail(fmt.Errorf("connect postgres: %w", err))
			}
			d.closers = append(d.closers, func() error { pool.Close(); return nil })
			loader = pgloader.NewQuizLoader(pool)
		} else {
			if len(seed) == 0 {
				seed = sampleQuizzes()
			}
			loader = memory.NewStaticQuizLoader(quizfile.Map(seed))
		}
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, logger)
		if err != nil {
			return fail(err)
		}
		d.publisher = events.NewPublisher(pub, cfg.Events.Topic)
	} else {
		pubsub := events.NewGoChannel(logger)
		d.publisher = events.NewPublisher(pubsub, cfg.Events.Topic)
		d.subscriber = pubsub
	}
	d.closers = append(d.closers, d.publisher.Close)

	d.manager = app.NewSessionManager(quizzes, store,
		app.WithSubmitGrace(config.Duration(cfg.Attempt.SubmitGrace, app.DefaultSubmitGrace)),
		app.WithEvents(d.publisher),
		app.WithLogger(logger),
	)
	return d, nil
}

func openSQL(ctx context.Context, cfg config.Config) (*bun.DB, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Postgres.URL)
	case config.DriverSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.SQLite.DSN)
	default:
		return nil, errors.New("store driver must be postgres or sqlite")
	}
}

func seedQuizzes(cfg config.Config) ([]domain.Quiz, error) {
	if cfg.Quiz.SeedFile == "" {
		return nil, nil
	}
	quizzes, err := quizfile.Load(cfg.Quiz.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.Quiz.SeedFile, err)
	}
	return quizzes, nil
}

func saveAll(ctx context.Context, saver quizSaver, quizzes []domain.Quiz) error {
	for _, quiz := range quizzes {
		if err := saver.SaveQuiz(ctx, quiz); err != nil {
			return fmt.Errorf("save quiz %s: %w", quiz.Code, err)
		}
	}
	return nil
}

// sampleQuizzes is served by the memory and redis drivers when no seed file is configured.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			Code:            "DEMO42",
			Title:           "Warm-up",
			DurationMinutes: 2,
			Questions: []domain.Question{
				{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
				{Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter"}, CorrectAnswer: "Mars"},
			},
		},
	}
}
