package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/prscore/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes concurrent score updates instead of failing with
	// "database is locked".
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// migrationFiles returns the embedded migrations for a dialect, sorted by name.
func migrationFiles(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	names, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}

	for _, name := range names {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/sqlite/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Assignments ---

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (id, title, description, github_repo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.GitHubRepoURL, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	a := &models.Assignment{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, github_repo_url, created_at, updated_at
		FROM assignments WHERE id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.Description, &a.GitHubRepoURL, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, github_repo_url, created_at, updated_at
		FROM assignments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = newULID()
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionStatusSubmitted
	}
	now := time.Now().UTC()
	sub.SubmittedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, assignment_id, user_id, pr_url, status, ci_state, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.AssignmentID, sub.UserID, sub.PRURL, string(sub.Status), sub.CIState, sub.SubmittedAt, sub.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("submission for %s: %w", sub.PRURL, ErrConflict)
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *SQLiteStore) FindSubmissionByPRURL(ctx context.Context, prURL string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE pr_url = ?`, prURL)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission for %s: %w", prURL, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, assignmentID string) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var args []any
	if assignmentID != "" {
		query += ` WHERE assignment_id = ?`
		args = append(args, assignmentID)
	}
	query += ` ORDER BY submitted_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// UpdateSubmissionScores writes only the fields present in u. An empty
// update is a no-op.
func (s *SQLiteStore) UpdateSubmissionScores(ctx context.Context, u *models.SubmissionScoreUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	query, args, err := buildScoreUpdate(u, time.Now().UTC(), func(int) string { return "?" })
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission scores: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("submission %s: %w", u.SubmissionID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpdateSubmissionStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return nil
}
