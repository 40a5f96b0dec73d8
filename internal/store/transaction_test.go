package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction(t *testing.T) {
	ctx := context.Background()
	fnErr := errors.New("row write failed")

	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		fn      TxFn
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "commits on success",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO row_results").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO row_results VALUES (1)")
				return err
			},
			wantErr: func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name: "rolls back and returns fn error unchanged",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return fnErr },
			wantErr: func(t *testing.T, err error) {
				assert.Same(t, fnErr, err)
			},
		},
		{
			name: "begin failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
			},
			fn: func(ctx context.Context, tx *sql.Tx) error {
				t.Fatal("fn must not run when begin fails")
				return nil
			},
			wantErr: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to begin transaction")
			},
		},
		{
			name: "commit failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(errors.New("connection reset"))
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return nil },
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTransactionFailed)
				assert.Contains(t, err.Error(), "connection reset")
			},
		},
		{
			name: "rollback failure keeps both errors",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback().WillReturnError(errors.New("connection lost"))
			},
			fn: func(ctx context.Context, tx *sql.Tx) error { return fnErr },
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, fnErr)
				assert.ErrorIs(t, err, ErrTransactionFailed)
				assert.Contains(t, err.Error(), "connection lost")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tc.expect(mock)

			tc.wantErr(t, RunInTransaction(ctx, db, tc.fn))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransaction_PanicRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "decoder blew up", func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			panic("decoder blew up")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
