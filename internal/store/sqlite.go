package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS competitions (
	id   TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	team_id        TEXT,
	file_path      TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	public_score   REAL,
	private_score  REAL,
	error_message  TEXT,
	created_at     DATETIME NOT NULL,
	scored_at      DATETIME
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id            TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL,
	error         TEXT NOT NULL,
	error_type    TEXT NOT NULL,
	attempts      INTEGER NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_competition ON submissions(competition_id);
CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(competition_id, user_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(competition_id, status);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = model.StatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, competition_id, user_id, team_id, file_path, file_name, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.CompetitionID, sub.UserID, nullString(sub.TeamID),
		sub.FilePath, sub.FileName, string(sub.Status), sub.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert submission")
}

const submissionColumns = `id, competition_id, user_id, team_id, file_path, file_name,
	status, public_score, private_score, error_message, created_at, scored_at`

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, id string, from, to model.SubmissionStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: transition submission %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkScored(ctx context.Context, id string, publicScore, privateScore float64, scoredAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET status = ?, public_score = ?, private_score = ?, error_message = NULL, scored_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusScored), publicScore, privateScore, scoredAt.UTC(),
		id, string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark scored %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, errorMessage string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET status = ?, error_message = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(model.StatusFailed), errorMessage,
		id, string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark failed %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListScored(ctx context.Context, competitionID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE competition_id = ? AND status = ?
		 ORDER BY created_at ASC`,
		competitionID, string(model.StatusScored),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scored")
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *SQLiteStore) ListByUser(ctx context.Context, competitionID, userID string, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE competition_id = ? AND user_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		competitionID, userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by user")
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status model.SubmissionStatus, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE status = ?
		 ORDER BY created_at ASC LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by status")
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *SQLiteStore) CountToday(ctx context.Context, competitionID, userID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions
		 WHERE competition_id = ? AND user_id = ? AND created_at >= ?`,
		competitionID, userID, dayStart(now),
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count today")
}

func (s *SQLiteStore) PutCompetition(ctx context.Context, comp *model.Competition) error {
	data, err := json.Marshal(comp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competition")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO competitions (id, slug, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET slug = excluded.slug, data = excluded.data`,
		comp.ID, comp.Slug, string(data),
	)
	return eris.Wrap(err, "sqlite: put competition")
}

func (s *SQLiteStore) GetCompetition(ctx context.Context, id string) (*model.Competition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM competitions WHERE id = ?`, id)
	return scanCompetition(row)
}

func (s *SQLiteStore) GetCompetitionBySlug(ctx context.Context, slug string) (*model.Competition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM competitions WHERE slug = ?`, slug)
	return scanCompetition(row)
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert notification")
}

func (s *SQLiteStore) CreateDeadLetter(ctx context.Context, d *resilience.DeadLetter) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, submission_id, error, error_type, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.SubmissionID, d.Error, d.ErrorType, d.Attempts, d.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert dead letter")
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, limit int) ([]resilience.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, error, error_type, attempts, created_at
		 FROM dead_letters ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close()

	var letters []resilience.DeadLetter
	for rows.Next() {
		var d resilience.DeadLetter
		if err := rows.Scan(&d.ID, &d.SubmissionID, &d.Error, &d.ErrorType, &d.Attempts, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dead letter")
		}
		d.CreatedAt = d.CreatedAt.UTC()
		letters = append(letters, d)
	}
	return letters, eris.Wrap(rows.Err(), "sqlite: iterate dead letters")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSubmission(row scannable) (*model.Submission, error) {
	var sub model.Submission
	var teamID, errorMessage sql.NullString
	var publicScore, privateScore sql.NullFloat64
	var scoredAt sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.CompetitionID, &sub.UserID, &teamID, &sub.FilePath, &sub.FileName,
		&sub.Status, &publicScore, &privateScore, &errorMessage, &sub.CreatedAt, &scoredAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "submission")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan submission")
	}

	sub.TeamID = teamID.String
	sub.ErrorMessage = errorMessage.String
	if publicScore.Valid {
		sub.PublicScore = &publicScore.Float64
	}
	if privateScore.Valid {
		sub.PrivateScore = &privateScore.Float64
	}
	if scoredAt.Valid {
		t := scoredAt.Time.UTC()
		sub.ScoredAt = &t
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	return &sub, nil
}

func collectSubmissions(rows *sql.Rows) ([]model.Submission, error) {
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "iterate submissions")
}

func scanCompetition(row scannable) (*model.Competition, error) {
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "competition")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan competition")
	}
	var comp model.Competition
	if err := json.Unmarshal([]byte(data), &comp); err != nil {
		return nil, eris.Wrap(err, "unmarshal competition")
	}
	return &comp, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
