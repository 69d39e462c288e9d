package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/domain"
)

const uniqueViolation = "23505"

// buildSet renders the SET clause of a partial update. Columns outside
// allowed are rejected. Placeholders start at $1; the returned next index
// is the first free placeholder.
func buildSet(fields cacheaside.Fields, allowed map[string]bool) (string, []any, int, error) {
	if len(fields) == 0 {
		return "", nil, 0, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !allowed[col] {
			return "", nil, 0, fmt.Errorf("%w: column %q is not updatable", domain.ErrInvalidInput, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		switch v := fields[col].(type) {
		case cacheaside.Increment:
			parts = append(parts, fmt.Sprintf("%s = %s + $%d", col, col, i+1))
			args = append(args, int(v))
		default:
			parts = append(parts, fmt.Sprintf("%s = $%d", col, i+1))
			args = append(args, v)
		}
	}

	return strings.Join(parts, ", "), args, len(cols) + 1, nil
}

// conflictErr maps unique violations to domain.ErrConflict.
func conflictErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
