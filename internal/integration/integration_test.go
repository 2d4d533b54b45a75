package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pgloader "quiz-attempt-service/internal/infra/postgres"
	infraredis "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/sqlstore"
	"quiz-attempt-service/internal/infra/sqlstore/migrations"
)

// Quiz content lives in Postgres, attempts in Redis.
func TestAttemptOverRedisAndPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizzes := infraredis.NewQuizRepository(redisClient, pgloader.NewQuizLoader(pool), 5*time.Minute)
	manager := app.NewSessionManager(quizzes, infraredis.NewSessionStore(redisClient))
	runAttempt(t, ctx, manager)
}

// Quiz content and attempts share one Postgres database through bun.
func TestAttemptOverPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	store := seedQuiz(t, ctx, pgURL, sampleQuiz())

	manager := app.NewSessionManager(memory.NewQuizRepository(store, time.Minute), store)
	runAttempt(t, ctx, manager)
}

func runAttempt(t *testing.T, ctx context.Context, manager *app.SessionManager) {
	t.Helper()
	first, err := manager.Start(ctx, "int001", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	again, err := manager.Start(ctx, "INT001", "u1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !again.Deadline.Equal(first.Deadline) {
		t.Fatalf("deadline moved: %s vs %s", again.Deadline, first.Deadline)
	}

	var ok, lost atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		auto := i%2 == 1
		g.Go(func() error {
			_, err := manager.Submit(ctx, "INT001", "u1", domain.Answers{0: "4"}, auto)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadySubmitted):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ok.Load() != 1 || lost.Load() != 9 {
		t.Fatalf("expected exactly one submission, got ok=%d lost=%d", ok.Load(), lost.Load())
	}

	sub, err := manager.Submission(ctx, "INT001", "u1")
	if err != nil {
		t.Fatalf("submission: %v", err)
	}
	if sub.Score != 1 || sub.Total != 1 {
		t.Fatalf("unexpected score %d/%d", sub.Score, sub.Total)
	}
	if _, err := manager.Start(ctx, "INT001", "u1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden after submission, got %v", err)
	}
	if _, err := manager.Start(ctx, "NOPE00", "u1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) *sqlstore.Store {
	t.Helper()
	db, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqlstore.New(db)
	if err := store.SaveQuiz(ctx, quiz); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	return store
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Code:            "INT001",
		Title:           "Integration",
		DurationMinutes: 1,
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
