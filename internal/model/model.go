package model

import "time"

// SubmissionStatus tracks a submission through the scoring state machine.
type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusScored     SubmissionStatus = "scored"
	StatusFailed     SubmissionStatus = "failed"
)

// Terminal reports whether the status is final. Terminal submissions are
// never re-scored.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusScored || s == StatusFailed
}

// CompetitionStatus tracks the competition lifecycle.
type CompetitionStatus string

const (
	CompetitionDraft      CompetitionStatus = "draft"
	CompetitionActive     CompetitionStatus = "active"
	CompetitionEvaluation CompetitionStatus = "evaluation"
	CompetitionCompleted  CompetitionStatus = "completed"
	CompetitionArchived   CompetitionStatus = "archived"
)

// Submission is one scored (or to-be-scored) prediction file upload.
type Submission struct {
	ID            string           `json:"id"`
	CompetitionID string           `json:"competition_id"`
	UserID        string           `json:"user_id"`
	TeamID        string           `json:"team_id,omitempty"`
	FilePath      string           `json:"file_path"`
	FileName      string           `json:"file_name"`
	Status        SubmissionStatus `json:"status"`
	PublicScore   *float64         `json:"public_score,omitempty"`
	PrivateScore  *float64         `json:"private_score,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ScoredAt      *time.Time       `json:"scored_at,omitempty"`
}

// Participant returns the leaderboard ranking unit: the team when the
// competition runs in team mode and the submission carries one, otherwise
// the submitting user.
func (s *Submission) Participant(teamMode bool) string {
	if teamMode && s.TeamID != "" {
		return s.TeamID
	}
	return s.UserID
}

// Competition holds the read-only competition settings the scoring
// subsystem consumes. Everything else about competitions is managed
// elsewhere.
type Competition struct {
	ID                   string            `json:"id" yaml:"id"`
	Title                string            `json:"title" yaml:"title"`
	Slug                 string            `json:"slug" yaml:"slug"`
	Status               CompetitionStatus `json:"status" yaml:"status"`
	EvaluationMetric     string            `json:"evaluation_metric" yaml:"evaluation_metric"`
	SolutionKey          string            `json:"solution_key" yaml:"solution_key"`
	IDColumn             string            `json:"id_column,omitempty" yaml:"id_column,omitempty"`
	PredictionColumn     string            `json:"prediction_column,omitempty" yaml:"prediction_column,omitempty"`
	TargetColumn         string            `json:"target_column,omitempty" yaml:"target_column,omitempty"`
	DailySubmissionLimit int               `json:"daily_submission_limit" yaml:"daily_submission_limit"`
	StartDate            time.Time         `json:"start_date" yaml:"start_date"`
	EndDate              time.Time         `json:"end_date" yaml:"end_date"`
	TeamMode             bool              `json:"team_mode" yaml:"team_mode"`
	MaxTeamSize          int               `json:"max_team_size" yaml:"max_team_size"`
}

// LeaderboardEntry is a derived ranking row. Entries are recomputed on every
// query and never persisted.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	ParticipantID   string    `json:"participant_id"`
	DisplayName     string    `json:"display_name"`
	BestScore       float64   `json:"best_score"`
	SubmissionCount int       `json:"submission_count"`
	FirstSubmission time.Time `json:"first_submission"`
	LastSubmission  time.Time `json:"last_submission"`
}
