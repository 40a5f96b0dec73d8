package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// PostgresRequestStore implements the store.RequestStore interface
// using a PostgreSQL database as the storage backend.
type PostgresRequestStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRequestStore creates a new PostgreSQL implementation of the RequestStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresRequestStore(db store.DBTX, logger *slog.Logger) *PostgresRequestStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresRequestStore{
		db:     db,
		logger: logger.With(slog.String("component", "request_store")),
	}
}

// Ensure PostgresRequestStore implements store.RequestStore interface
var _ store.RequestStore = (*PostgresRequestStore)(nil)

// WithTx returns a store that runs every statement on tx.
func (s *PostgresRequestStore) WithTx(tx *sql.Tx) *PostgresRequestStore {
	return &PostgresRequestStore{db: tx, logger: s.logger}
}

// CreateRequest implements store.RequestStore.CreateRequest
func (s *PostgresRequestStore) CreateRequest(ctx context.Context, req *domain.Request) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := req.Validate(); err != nil {
		log.Warn("request validation failed during create",
			slog.String("error", err.Error()),
			slog.String("request_id", req.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO requests (id, status, payload_ref, error_message, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		req.ID,
		string(req.Status),
		req.PayloadRef,
		req.ErrorMessage,
		req.Attempts,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrRequestExists, err)
		}
		log.Error("failed to create request",
			slog.String("error", err.Error()),
			slog.String("request_id", req.ID.String()))
		return MapError(err)
	}

	log.Debug("request created",
		slog.String("request_id", req.ID.String()),
		slog.String("status", string(req.Status)))
	return nil
}

// GetRequest implements store.RequestStore.GetRequest
func (s *PostgresRequestStore) GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, status, payload_ref, error_message, attempts, created_at, updated_at
		FROM requests
		WHERE id = $1
	`

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("request not found", slog.String("request_id", id.String()))
			return nil, store.ErrRequestNotFound
		}
		log.Error("failed to get request",
			slog.String("error", err.Error()),
			slog.String("request_id", id.String()))
		return nil, MapError(err)
	}

	return req, nil
}

// UpdateStatus implements store.RequestStore.UpdateStatus
func (s *PostgresRequestStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RequestStatus,
	errorMessage string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !status.Valid() {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidRequestStatus)
	}

	increment := 0
	if status == domain.RequestStatusProcessing {
		increment = 1
	}

	query := `
		UPDATE requests
		SET status = $2, error_message = $3, attempts = attempts + $4, updated_at = $5
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`
	result, err := s.db.ExecContext(ctx, query,
		id,
		string(status),
		errorMessage,
		increment,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to update request status",
			slog.String("error", err.Error()),
			slog.String("request_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "request"); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// distinguish a missing request from one that is already final
		var current string
		lookupErr := s.db.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = $1`, id).Scan(&current)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return store.ErrRequestNotFound
		}
		if lookupErr != nil {
			return MapError(lookupErr)
		}
		log.Warn("status update rejected for terminal request",
			slog.String("request_id", id.String()),
			slog.String("current_status", current),
			slog.String("requested_status", string(status)))
		return store.ErrTerminalStatus
	}

	log.Debug("request status updated",
		slog.String("request_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// ListRequestsByStatus implements store.RequestStore.ListRequestsByStatus
func (s *PostgresRequestStore) ListRequestsByStatus(
	ctx context.Context,
	statuses []domain.RequestStatus,
	updatedBefore time.Time,
) ([]*domain.Request, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(statuses) == 0 {
		return nil, nil
	}

	args := []any{updatedBefore}
	placeholders := make([]string, len(statuses))
	for i, st := range statuses {
		args = append(args, string(st))
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}

	query := fmt.Sprintf(`
		SELECT id, status, payload_ref, error_message, attempts, created_at, updated_at
		FROM requests
		WHERE updated_at < $1 AND status IN (%s)
		ORDER BY updated_at ASC
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query requests by status", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var requests []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			log.Error("failed to scan request row", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request rows: %w", err)
	}

	return requests, nil
}

// UpsertRowResults implements store.RequestStore.UpsertRowResults.
// When the store wraps a *sql.DB all results are written in one
// transaction; on a *sql.Tx they join the caller's transaction.
func (s *PostgresRequestStore) UpsertRowResults(
	ctx context.Context,
	requestID uuid.UUID,
	results []domain.RowResult,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for i := range results {
		if results[i].RequestID != requestID {
			return fmt.Errorf("%w: row result belongs to request %s", store.ErrInvalidEntity, results[i].RequestID)
		}
		if err := results[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}
	if len(results) == 0 {
		return nil
	}

	write := func(ctx context.Context, db store.DBTX) error {
		for _, r := range results {
			if err := upsertRowResult(ctx, db, r); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if sqlDB, ok := s.db.(*sql.DB); ok {
		err = store.RunInTransaction(ctx, sqlDB, func(ctx context.Context, tx *sql.Tx) error {
			return write(ctx, tx)
		})
	} else {
		err = write(ctx, s.db)
	}

	if err != nil {
		if IsForeignKeyViolation(err) {
			return store.ErrRequestNotFound
		}
		log.Error("failed to upsert row results",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID.String()),
			slog.Int("rows", len(results)))
		return MapError(err)
	}

	log.Debug("row results recorded",
		slog.String("request_id", requestID.String()),
		slog.Int("rows", len(results)))
	return nil
}

func upsertRowResult(ctx context.Context, db store.DBTX, r domain.RowResult) error {
	inputs, err := json.Marshal(r.InputURLs)
	if err != nil {
		return fmt.Errorf("failed to encode input urls: %w", err)
	}
	outputs, err := json.Marshal(r.OutputRefs)
	if err != nil {
		return fmt.Errorf("failed to encode output refs: %w", err)
	}
	outcomes, err := json.Marshal(r.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}

	query := `
		INSERT INTO row_results
			(request_id, row_ordinal, serial_number, product_name, input_urls, output_refs, outcomes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id, row_ordinal) DO UPDATE SET
			serial_number = EXCLUDED.serial_number,
			product_name = EXCLUDED.product_name,
			input_urls = EXCLUDED.input_urls,
			output_refs = EXCLUDED.output_refs,
			outcomes = EXCLUDED.outcomes,
			updated_at = EXCLUDED.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		r.RequestID,
		r.Ordinal,
		r.SerialNumber,
		r.ProductName,
		inputs,
		outputs,
		outcomes,
		time.Now().UTC(),
	)
	return err
}

// GetRowResults implements store.RequestStore.GetRowResults
func (s *PostgresRequestStore) GetRowResults(ctx context.Context, requestID uuid.UUID) ([]domain.RowResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT row_ordinal, serial_number, product_name, input_urls, output_refs, outcomes
		FROM row_results
		WHERE request_id = $1
		ORDER BY row_ordinal ASC
	`
	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		log.Error("failed to query row results",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	results := []domain.RowResult{}
	for rows.Next() {
		r := domain.RowResult{RequestID: requestID}
		var inputs, outputs, outcomes []byte
		if err := rows.Scan(&r.Ordinal, &r.SerialNumber, &r.ProductName, &inputs, &outputs, &outcomes); err != nil {
			return nil, fmt.Errorf("failed to scan row result: %w", err)
		}
		if err := json.Unmarshal(inputs, &r.InputURLs); err != nil {
			return nil, fmt.Errorf("failed to decode input urls: %w", err)
		}
		if err := json.Unmarshal(outputs, &r.OutputRefs); err != nil {
			return nil, fmt.Errorf("failed to decode output refs: %w", err)
		}
		if err := json.Unmarshal(outcomes, &r.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating row results: %w", err)
	}

	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.Request, error) {
	var req domain.Request
	var status string
	if err := row.Scan(
		&req.ID,
		&status,
		&req.PayloadRef,
		&req.ErrorMessage,
		&req.Attempts,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	return &req, nil
}
