package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joescharf/prscore/internal/models"
)

// PostgresStore implements Store on a pgx connection pool. Row-level
// atomicity of single UPDATE statements gives last-write-wins semantics for
// concurrent score updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func pgPlaceholder(i int) string { return "$" + strconv.Itoa(i) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Migrate runs all embedded Postgres migration files in order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	names, err := migrationFiles("postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		var count int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = $1", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/postgres/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Assignments ---

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assignments (id, title, description, github_repo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Title, a.Description, a.GitHubRepoURL, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	a := &models.Assignment{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, github_repo_url, created_at, updated_at
		FROM assignments WHERE id = $1`, id,
	).Scan(&a.ID, &a.Title, &a.Description, &a.GitHubRepoURL, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, github_repo_url, created_at, updated_at
		FROM assignments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assignment
	for rows.Next() {
		a := &models.Assignment{}
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.GitHubRepoURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Submissions ---

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = newULID()
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionStatusSubmitted
	}
	now := time.Now().UTC()
	sub.SubmittedAt = now
	sub.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, assignment_id, user_id, pr_url, status, ci_state, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.AssignmentID, sub.UserID, sub.PRURL, string(sub.Status), sub.CIState, sub.SubmittedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("submission for %s: %w", sub.PRURL, ErrConflict)
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) FindSubmissionByPRURL(ctx context.Context, prURL string) (*models.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE pr_url = $1`, prURL)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("submission for %s: %w", prURL, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, assignmentID string) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var args []any
	if assignmentID != "" {
		query += ` WHERE assignment_id = $1`
		args = append(args, assignmentID)
	}
	query += ` ORDER BY submitted_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSubmissionScores(ctx context.Context, u *models.SubmissionScoreUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	query, args, err := buildScoreUpdate(u, time.Now().UTC(), pgPlaceholder)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s: %w", u.SubmissionID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return nil
}
