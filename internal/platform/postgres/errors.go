package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/imgbatch-api/internal/store"
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
)

// codeErrors maps SQLSTATE codes to store sentinels.
var codeErrors = map[string]error{
	codeUniqueViolation:     store.ErrDuplicate,
	codeForeignKeyViolation: store.ErrInvalidEntity,
	codeCheckViolation:      store.ErrInvalidEntity,
	codeNotNullViolation:    store.ErrInvalidEntity,
	codeSerialization:       store.ErrTransactionFailed,
	codeDeadlock:            store.ErrTransactionFailed,
}

// MapError translates driver errors into store sentinels while keeping the
// driver error in the chain. Unrecognized errors are returned as is.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	sentinel, ok := codeErrors[pgErr.Code]
	if !ok {
		return err
	}

	detail := pgErr.ConstraintName
	if pgErr.Code == codeNotNullViolation {
		detail = pgErr.ColumnName
	}
	if detail == "" {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("%w (%s): %w", sentinel, detail, err)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// IsUniqueViolation reports whether err carries a unique_violation.
func IsUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

// IsForeignKeyViolation reports whether err carries a foreign_key_violation,
// which for row results means the parent request does not exist.
func IsForeignKeyViolation(err error) bool { return hasCode(err, codeForeignKeyViolation) }

// CheckRowsAffected returns an error wrapping store.ErrNotFound when result
// touched no rows.
func CheckRowsAffected(result sql.Result, what string) error {
	if result == nil {
		return errors.New("no result to check")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}
	return nil
}
