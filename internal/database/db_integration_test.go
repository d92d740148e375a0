//go:build integration

package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"aviator-tracker-go/internal/models"
	"aviator-tracker-go/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPostgresURL string

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("aviator_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %s", err)
	}

	pgHost, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("failed to get pg host: %v", err)
	}
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("failed to get pg port: %v", err)
	}
	testPostgresURL = fmt.Sprintf("postgres://postgres:password@%s:%s/aviator_test?sslmode=disable", pgHost, pgPort.Port())

	code := m.Run()

	if terr := pgContainer.Terminate(ctx); terr != nil {
		log.Printf("failed to terminate pg container: %v", terr)
	}

	os.Exit(code)
}

func TestPostgresSchemaAndCommit(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, testPostgresURL)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, InitSchema(ctx, db))
	require.NoError(t, InitSchema(ctx, db), "schema init must be idempotent")

	w := pipeline.NewWriter(db, 1)
	now := time.Now()

	batch := &pipeline.Batch{
		Key: models.DestinationKey{Bookmaker: "balkanbet", Kind: models.KindSnapshot},
	}
	for i := 0; i < 50; i++ {
		batch.Items = append(batch.Items, models.NewSnapshotRecord("balkanbet", now,
			models.Snapshot{RoundID: 9, CurrentScore: 1.0 + float64(i)*0.05, CurrentPlayers: 200 - i, CurrentPlayersWin: float64(i)}))
	}
	require.NoError(t, w.Commit(ctx, batch))

	var n int
	require.NoError(t, db.GetContext(ctx, &n, "SELECT COUNT(*) FROM snapshots WHERE bookmaker = 'balkanbet'"))
	assert.Equal(t, 50, n)
}

func TestPostgresFullDrain(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, testPostgresURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, InitSchema(ctx, db))

	queue := pipeline.NewRecordQueue(1000)
	worker := pipeline.NewBatchWorker(queue, pipeline.NewWriter(db, 1), pipeline.NewQueueMetrics(), pipeline.WorkerConfig{
		BatchSize:    50,
		BatchTimeout: 200 * time.Millisecond,
	})
	worker.Start()

	const total = 500
	now := time.Now()
	for i := 0; i < total; i++ {
		rec := models.NewRoundRecord("maxbet", now,
			models.Round{RoundID: int64(1000 + i), Score: 1.5, TotalWin: 10, TotalPlayers: 99})
		require.NoError(t, queue.Put(rec))
	}

	worker.Drain()
	require.NoError(t, worker.WaitStopped(30*time.Second))

	var n int
	require.NoError(t, db.GetContext(ctx, &n, "SELECT COUNT(*) FROM rounds WHERE bookmaker = 'maxbet'"))
	assert.Equal(t, total, n, "every accepted record must reach the database on drain")
}
