// Package storage keeps a small local history of what this client
// submitted, so `exray history` works with no backend in reach. The
// authoritative run state always lives server-side.
package storage

import (
	"database/sql"
	"time"

	"github.com/ameen-91/exray/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		workflow TEXT NOT NULL,
		original_filename TEXT,
		backend_url TEXT,
		submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_workflow ON submissions(workflow);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Submission is one locally recorded submit.
type Submission struct {
	ID               int64
	RunID            string
	Workflow         string
	OriginalFilename string
	BackendURL       string
	SubmittedAt      time.Time
}

// RecordSubmission stores the run a submit command just created.
func (s *Storage) RecordSubmission(run *models.Run, backendURL string) error {
	_, err := s.db.Exec(
		`INSERT INTO submissions (run_id, workflow, original_filename, backend_url)
		 VALUES (?, ?, ?, ?)`,
		run.RunID, string(run.Workflow), run.OriginalFilename, backendURL,
	)
	return err
}

// ListSubmissions returns the most recent submissions, newest first.
func (s *Storage) ListSubmissions(limit int) ([]*Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, workflow, original_filename, backend_url, submitted_at
		 FROM submissions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		var sub Submission
		var filename, backendURL sql.NullString

		err := rows.Scan(&sub.ID, &sub.RunID, &sub.Workflow, &filename, &backendURL, &sub.SubmittedAt)
		if err != nil {
			return nil, err
		}

		if filename.Valid {
			sub.OriginalFilename = filename.String
		}
		if backendURL.Valid {
			sub.BackendURL = backendURL.String
		}

		subs = append(subs, &sub)
	}

	return subs, rows.Err()
}

// DeleteSubmission drops one run from the local history.
func (s *Storage) DeleteSubmission(runID string) error {
	_, err := s.db.Exec(`DELETE FROM submissions WHERE run_id = ?`, runID)
	return err
}
