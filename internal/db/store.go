package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cycleuser/audiblez/internal/models"
)

var ErrNotFound = errors.New("job not found")

const timeLayout = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// ChapterRecord is one narrated chapter of a job.
type ChapterRecord struct {
	JobID   string  `json:"job_id"`
	Index   int     `json:"index"`
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Chars   int     `json:"chars"`
	Seconds float64 `json:"seconds"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragma := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, stmt := range pragma {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("pragma: %w", err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
	telegram_id INTEGER PRIMARY KEY,
	username TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	lang TEXT NOT NULL,
	voice TEXT NOT NULL,
	speed REAL NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	output TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);

CREATE TABLE IF NOT EXISTS job_chapters (
	job_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	chars INTEGER NOT NULL,
	seconds REAL NOT NULL,
	PRIMARY KEY(job_id, idx),
	FOREIGN KEY(job_id) REFERENCES jobs(id) ON DELETE CASCADE
);
`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func (s *Store) EnsureUser(ctx context.Context, telegramID int64, username string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (telegram_id, username)
VALUES (?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET username = excluded.username
`, telegramID, username)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// CreateJob stores a pending job and returns it with its new ID.
func (s *Store) CreateJob(ctx context.Context, job models.Job) (models.Job, error) {
	job.ID = uuid.NewString()
	job.Status = models.JobPending
	job.Progress = 0

	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, user_id, source, title, author, lang, voice, speed, status, progress, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
`, job.ID, job.UserID, job.Source, job.Title, job.Author, job.Lang, job.Voice, job.Speed, string(job.Status), now, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	created, err := time.Parse(timeLayout, now)
	if err != nil {
		return models.Job{}, err
	}
	job.CreatedAt, job.UpdatedAt = created, created
	return job, nil
}

func (s *Store) update(ctx context.Context, jobID, query string, args ...any) error {
	args = append(args, s.stamp(), jobID)
	res, err := s.db.ExecContext(ctx, query+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBook marks the job as processing and stores the book metadata.
func (s *Store) SetBook(ctx context.Context, jobID, title, author string) error {
	return s.update(ctx, jobID, `UPDATE jobs SET title = ?, author = ?, status = ?`, title, author, string(models.JobProcessing))
}

func (s *Store) SetProgress(ctx context.Context, jobID string, percent int) error {
	return s.update(ctx, jobID, `UPDATE jobs SET progress = ?`, percent)
}

func (s *Store) AddChapter(ctx context.Context, jobID string, file models.AudioChapterFile) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_chapters (job_id, idx, title, path, chars, seconds)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id, idx) DO UPDATE SET
	title = excluded.title, path = excluded.path, chars = excluded.chars, seconds = excluded.seconds
`, jobID, file.Index, file.Title, file.Path, file.Chars, file.Duration.Seconds())
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	return nil
}

// FinishJob moves the job to a terminal status.
func (s *Store) FinishJob(ctx context.Context, jobID string, status models.JobStatus, message, output string) error {
	if !status.IsDone() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	progress := 100
	if status != models.JobCompleted {
		progress = models.ProgressError
	}
	return s.update(ctx, jobID, `UPDATE jobs SET status = ?, message = ?, output = ?, progress = ?`,
		string(status), message, output, progress)
}

// FailInterrupted fails jobs left running by a previous process. Their chapter
// files stay on disk, so resubmitting the book resumes them.
func (s *Store) FailInterrupted(ctx context.Context, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, message = ?, updated_at = ?
WHERE status IN (?, ?)
`, string(models.JobFailed), message, s.stamp(), string(models.JobPending), string(models.JobProcessing))
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = `id, user_id, source, title, author, lang, voice, speed, status, progress, message, output, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (models.Job, error) {
	var (
		job              models.Job
		status           string
		created, updated string
	)
	if err := row.Scan(&job.ID, &job.UserID, &job.Source, &job.Title, &job.Author, &job.Lang, &job.Voice,
		&job.Speed, &status, &job.Progress, &job.Message, &job.Output, &created, &updated); err != nil {
		return models.Job{}, err
	}
	job.Status = models.JobStatus(status)

	var err error
	if job.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return models.Job{}, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return models.Job{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetJobForUser hides jobs of other users behind ErrNotFound.
func (s *Store) GetJobForUser(ctx context.Context, userID int64, jobID string) (models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if job.UserID != userID {
		return models.Job{}, ErrNotFound
	}
	return job, nil
}

// ListJobs returns the user's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, userID int64, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return jobs, nil
}

func (s *Store) ListChapters(ctx context.Context, jobID string) ([]ChapterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, idx, title, path, chars, seconds
FROM job_chapters
WHERE job_id = ?
ORDER BY idx
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []ChapterRecord
	for rows.Next() {
		var c ChapterRecord
		if err := rows.Scan(&c.JobID, &c.Index, &c.Title, &c.Path, &c.Chars, &c.Seconds); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return chapters, nil
}
