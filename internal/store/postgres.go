package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/switchyard/internal/experiment"
)

// Postgres persists assignments in PostgreSQL via a pgx connection pool. The
// (session_id, experiment_id) primary key gives PutIfAbsent its first-write-
// wins semantics under concurrent evaluation.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres store with a pgx connection pool.
func NewPostgres(dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *Postgres) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Postgres) Close() {
	s.db.Close()
}

// Get returns the assignment for the pair, or nil when none exists.
func (s *Postgres) Get(ctx context.Context, sessionID, experimentID string) (*experiment.Assignment, error) {
	var a experiment.Assignment
	err := s.db.QueryRow(ctx, `
		SELECT session_id, experiment_id, variant_id, forced, created_at
		FROM assignments
		WHERE session_id = $1 AND experiment_id = $2`,
		sessionID, experimentID,
	).Scan(&a.SessionID, &a.ExperimentID, &a.VariantID, &a.Forced, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// PutIfAbsent inserts the assignment unless the pair already has one.
func (s *Postgres) PutIfAbsent(ctx context.Context, a experiment.Assignment) (*experiment.Assignment, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO assignments (session_id, experiment_id, variant_id, forced, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, experiment_id) DO NOTHING`,
		a.SessionID, a.ExperimentID, a.VariantID, a.Forced, a.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert assignment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return &a, true, nil
	}
	existing, err := s.Get(ctx, a.SessionID, a.ExperimentID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Row vanished between insert and read; treat ours as the winner.
		return &a, true, nil
	}
	return existing, false, nil
}

// Put stores the assignment unconditionally, replacing any prior one.
func (s *Postgres) Put(ctx context.Context, a experiment.Assignment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO assignments (session_id, experiment_id, variant_id, forced, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, experiment_id)
		DO UPDATE SET variant_id = EXCLUDED.variant_id,
		              forced     = EXCLUDED.forced,
		              created_at = EXCLUDED.created_at`,
		a.SessionID, a.ExperimentID, a.VariantID, a.Forced, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put assignment: %w", err)
	}
	return nil
}

// List returns the session's assignments ordered by creation time.
func (s *Postgres) List(ctx context.Context, sessionID string) ([]experiment.Assignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, experiment_id, variant_id, forced, created_at
		FROM assignments
		WHERE session_id = $1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []experiment.Assignment
	for rows.Next() {
		var a experiment.Assignment
		if err := rows.Scan(&a.SessionID, &a.ExperimentID, &a.VariantID, &a.Forced, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
