package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusScored.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestSubmissionParticipant(t *testing.T) {
	sub := &Submission{UserID: "alice", TeamID: "team-red"}

	assert.Equal(t, "team-red", sub.Participant(true))
	assert.Equal(t, "alice", sub.Participant(false))

	solo := &Submission{UserID: "bob"}
	assert.Equal(t, "bob", solo.Participant(true))
}
