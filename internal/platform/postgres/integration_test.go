package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/platform/postgres"
	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/store"
	"github.com/phrazzld/imgbatch-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func integrationResults(requestID uuid.UUID) []domain.RowResult {
	row0 := domain.Row{Ordinal: 0, SerialNumber: "1", ProductName: "Widget",
		InputURLs: []string{"https://img.example/a.jpg", "ftp://bad"}}
	row1 := domain.Row{Ordinal: 1, Raw: "garbage", ParseErr: errors.New("malformed row")}
	return []domain.RowResult{
		domain.NewRowResult(requestID, row0, []domain.URLOutcome{
			domain.SuccessOutcome("outputs/x.jpg"),
			domain.FailureOutcome(domain.ErrorKindInvalidURL, "unsupported scheme"),
		}),
		domain.NewRowParseFailure(requestID, row1),
	}
}

func TestIntegration_RequestLifecycle(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	ctx := context.Background()
	s := postgres.NewPostgresRequestStore(db, quietLogger())

	req, err := domain.NewRequest(uuid.New(), "payloads/integration.csv")
	require.NoError(t, err)
	require.NoError(t, s.CreateRequest(ctx, req))
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM requests WHERE id = $1`, req.ID) })

	assert.ErrorIs(t, s.CreateRequest(ctx, req), store.ErrRequestExists)

	require.NoError(t, s.UpdateStatus(ctx, req.ID, domain.RequestStatusProcessing, ""))
	require.NoError(t, s.UpsertRowResults(ctx, req.ID, integrationResults(req.ID)))
	// upserting the same ordinals again replaces them
	require.NoError(t, s.UpsertRowResults(ctx, req.ID, integrationResults(req.ID)))
	require.NoError(t, s.UpdateStatus(ctx, req.ID, domain.RequestStatusCompleted, ""))

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)

	results, err := s.GetRowResults(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Ordinal)
	assert.Equal(t, domain.FailedOutputRef, results[1].OutputRefs[0])

	assert.ErrorIs(t, s.UpdateStatus(ctx, req.ID, domain.RequestStatusProcessing, ""), store.ErrTerminalStatus)
	assert.NoError(t, s.UpsertRowResults(ctx, req.ID, nil))

	missing := uuid.New()
	assert.ErrorIs(t, s.UpsertRowResults(ctx, missing, integrationResults(missing)), store.ErrRequestNotFound)
}

func TestIntegration_WithTxRollsBack(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	ctx := context.Background()
	base := postgres.NewPostgresRequestStore(db, quietLogger())

	req, err := domain.NewRequest(uuid.New(), "payloads/tx.csv")
	require.NoError(t, err)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		s := base.WithTx(tx)
		require.NoError(t, s.CreateRequest(ctx, req))
		require.NoError(t, s.UpsertRowResults(ctx, req.ID, integrationResults(req.ID)))

		results, err := s.GetRowResults(ctx, req.ID)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	_, err = base.GetRequest(ctx, req.ID)
	assert.ErrorIs(t, err, store.ErrRequestNotFound)
}

func TestIntegration_JobQueue(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := postgres.NewPostgresJobQueue(db, postgres.JobQueueConfig{
		LeaseDuration: 2 * time.Second,
		PollInterval:  20 * time.Millisecond,
	}, quietLogger())
	defer func() { _ = q.Close() }()

	// jobs left by earlier runs would be leased first
	_, err := db.ExecContext(ctx, `DELETE FROM jobs`)
	require.NoError(t, err)

	job := queue.Job{RequestID: uuid.New(), PayloadRef: "payloads/q.csv"}
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM jobs WHERE request_id = $1`, job.RequestID) })

	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Enqueue(ctx, job))

	first, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, job, first.Job())
	require.NoError(t, first.Nack(ctx, 0))

	second, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Attempt()+1, second.Attempt())
	require.NoError(t, second.Ack(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE request_id = $1`, job.RequestID).Scan(&count))
	assert.Zero(t, count)
}
