// Package buildpg stores build records in PostgreSQL.
package buildpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k11v/pblbuild/internal/build"
)

var _ build.Store = (*Store)(nil)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db Querier // required
}

func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// columns maps settable fields to their columns.
var columns = map[build.Field]string{
	build.FieldStep:  "step",
	build.FieldState: "state",
	build.FieldError: "error",
}

// CreateBuild implements build.Store.
func (s *Store) CreateBuild(ctx context.Context, b *build.Build) error {
	query := `
		INSERT INTO builds (id, step, state, error, timings, files, sdk_version, app_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	timings := b.Timings
	if timings == nil {
		timings = build.Timings{}
	}
	files := b.Files
	if files == nil {
		files = []build.File{}
	}
	args := []any{b.ID, b.Step, b.State, b.Error, timings, files, b.SDKVersion, b.AppName}

	_, err := s.db.Exec(ctx, query, args...)
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("create build: %w", build.ErrAlreadyExists)
	} else if err != nil {
		return fmt.Errorf("create build: %w", err)
	}

	return nil
}

// GetBuild implements build.Store.
func (s *Store) GetBuild(ctx context.Context, id uuid.UUID) (*build.Build, error) {
	query := `
		SELECT id, step, state, error, timings, files, sdk_version, app_name
		FROM builds
		WHERE id = $1
	`
	args := []any{id}

	rows, _ := s.db.Query(ctx, query, args...)
	b, err := pgx.CollectExactlyOneRow(rows, rowToBuild)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, build.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}

	return b, nil
}

// SetField implements build.Store.
func (s *Store) SetField(ctx context.Context, id uuid.UUID, field build.Field, value string) error {
	column, ok := columns[field]
	if !ok {
		return fmt.Errorf("set field: unknown field %q", field)
	}
	query := fmt.Sprintf(`UPDATE builds SET %s = $2 WHERE id = $1`, column)
	args := []any{id, value}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return build.ErrNotFound
	}

	return nil
}

// AppendTiming implements build.Store.
// The existence check and the write happen in one statement.
func (s *Store) AppendTiming(ctx context.Context, id uuid.UUID, event string, t time.Time) error {
	query := `
		UPDATE builds
		SET timings = CASE
			WHEN timings ? $2::text THEN timings
			ELSE timings || jsonb_build_object($2::text, $3::text)
		END
		WHERE id = $1
	`
	args := []any{id, event, t.UTC().Format(time.RFC3339Nano)}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("append timing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return build.ErrNotFound
	}

	return nil
}
