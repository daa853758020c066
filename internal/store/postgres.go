package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-ml/podium/internal/model"
	"github.com/meridian-ml/podium/internal/resilience"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS competitions (
	id   TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	competition_id TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	team_id        TEXT,
	file_path      TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	public_score   DOUBLE PRECISION,
	private_score  DOUBLE PRECISION,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	scored_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submission_id TEXT NOT NULL,
	error         TEXT NOT NULL,
	error_type    TEXT NOT NULL,
	attempts      INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_competition ON submissions(competition_id);
CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(competition_id, user_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(competition_id, status);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = model.StatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, competition_id, user_id, team_id, file_path, file_name, status, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
		sub.ID, sub.CompetitionID, sub.UserID, sub.TeamID,
		sub.FilePath, sub.FileName, string(sub.Status), sub.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert submission")
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmissionPgx(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	return sub, nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to model.SubmissionStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: transition submission %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkScored(ctx context.Context, id string, publicScore, privateScore float64, scoredAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions
		 SET status = $1, public_score = $2, private_score = $3, error_message = NULL, scored_at = $4
		 WHERE id = $5 AND status IN ($6, $7)`,
		string(model.StatusScored), publicScore, privateScore, scoredAt.UTC(),
		id, string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark scored %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, errorMessage string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions
		 SET status = $1, error_message = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		string(model.StatusFailed), errorMessage,
		id, string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark failed %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListScored(ctx context.Context, competitionID string) ([]model.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE competition_id = $1 AND status = $2
		 ORDER BY created_at ASC`,
		competitionID, string(model.StatusScored),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scored")
	}
	defer rows.Close()
	return collectSubmissionsPgx(rows)
}

func (s *PostgresStore) ListByUser(ctx context.Context, competitionID, userID string, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE competition_id = $1 AND user_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		competitionID, userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by user")
	}
	defer rows.Close()
	return collectSubmissionsPgx(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status model.SubmissionStatus, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE status = $1
		 ORDER BY created_at ASC LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by status")
	}
	defer rows.Close()
	return collectSubmissionsPgx(rows)
}

func (s *PostgresStore) CountToday(ctx context.Context, competitionID, userID string, now time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions
		 WHERE competition_id = $1 AND user_id = $2 AND created_at >= $3`,
		competitionID, userID, dayStart(now),
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count today")
}

func (s *PostgresStore) PutCompetition(ctx context.Context, comp *model.Competition) error {
	data, err := json.Marshal(comp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal competition")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO competitions (id, slug, data) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, data = EXCLUDED.data`,
		comp.ID, comp.Slug, string(data),
	)
	return eris.Wrap(err, "postgres: put competition")
}

func (s *PostgresStore) GetCompetition(ctx context.Context, id string) (*model.Competition, error) {
	return s.getCompetition(ctx, `SELECT data FROM competitions WHERE id = $1`, id)
}

func (s *PostgresStore) GetCompetitionBySlug(ctx context.Context, slug string) (*model.Competition, error) {
	return s.getCompetition(ctx, `SELECT data FROM competitions WHERE slug = $1`, slug)
}

func (s *PostgresStore) getCompetition(ctx context.Context, query, arg string) (*model.Competition, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, query, arg).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "competition")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get competition")
	}
	var comp model.Competition
	if err := json.Unmarshal(data, &comp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal competition")
	}
	return &comp, nil
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert notification")
}

func (s *PostgresStore) CreateDeadLetter(ctx context.Context, d *resilience.DeadLetter) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, submission_id, error, error_type, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.SubmissionID, d.Error, d.ErrorType, d.Attempts, d.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert dead letter")
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, limit int) ([]resilience.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, error, error_type, attempts, created_at
		 FROM dead_letters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var letters []resilience.DeadLetter
	for rows.Next() {
		var d resilience.DeadLetter
		if err := rows.Scan(&d.ID, &d.SubmissionID, &d.Error, &d.ErrorType, &d.Attempts, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dead letter")
		}
		d.CreatedAt = d.CreatedAt.UTC()
		letters = append(letters, d)
	}
	return letters, eris.Wrap(rows.Err(), "postgres: iterate dead letters")
}

// pgx scan helpers

func scanSubmissionPgx(row pgx.Row) (*model.Submission, error) {
	var sub model.Submission
	var teamID, errorMessage *string
	var publicScore, privateScore *float64
	var scoredAt *time.Time

	err := row.Scan(
		&sub.ID, &sub.CompetitionID, &sub.UserID, &teamID, &sub.FilePath, &sub.FileName,
		&sub.Status, &publicScore, &privateScore, &errorMessage, &sub.CreatedAt, &scoredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "submission")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan submission")
	}

	if teamID != nil {
		sub.TeamID = *teamID
	}
	if errorMessage != nil {
		sub.ErrorMessage = *errorMessage
	}
	sub.PublicScore = publicScore
	sub.PrivateScore = privateScore
	if scoredAt != nil {
		t := scoredAt.UTC()
		sub.ScoredAt = &t
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	return &sub, nil
}

func collectSubmissionsPgx(rows pgx.Rows) ([]model.Submission, error) {
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmissionPgx(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "iterate submissions")
}
