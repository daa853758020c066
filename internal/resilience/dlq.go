package resilience

import (
	"time"
)

// DeadLetter records a scoring job whose retries were exhausted. The
// participant only sees a generic failure message; the dead letter keeps
// the real cause queryable for operators.
type DeadLetter struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
