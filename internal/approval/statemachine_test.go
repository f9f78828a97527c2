package approval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLegalTransitions(t *testing.T) {
	cases := []struct {
		name   string
		status Status
		action Action
		level  int
		total  int
		want   Outcome
	}{
		{"submit into chain", StatusDraft, ActionSubmit, 0, 2, Outcome{StatusSubmitted, 1}},
		{"submit without levels", StatusDraft, ActionSubmit, 0, 0, Outcome{StatusApproved, 0}},
		{"approve below last", StatusSubmitted, ActionApprove, 1, 3, Outcome{StatusSubmitted, 2}},
		{"approve at last", StatusSubmitted, ActionApprove, 3, 3, Outcome{StatusApproved, 3}},
		{"reject keeps level", StatusSubmitted, ActionReject, 2, 3, Outcome{StatusRejected, 2}},
		{"revision resets level", StatusSubmitted, ActionRequestRevision, 2, 3, Outcome{StatusRevisionRequested, 0}},
		{"resubmit restarts", StatusRevisionRequested, ActionSubmit, 0, 3, Outcome{StatusSubmitted, 1}},
		{"resubmit without levels", StatusRevisionRequested, ActionSubmit, 0, 0, Outcome{StatusApproved, 0}},
		{"cancel draft", StatusDraft, ActionCancel, 0, 0, Outcome{StatusCancelled, 0}},
		{"cancel in flight", StatusSubmitted, ActionCancel, 2, 3, Outcome{StatusCancelled, 2}},
		{"cancel revision", StatusRevisionRequested, ActionCancel, 0, 3, Outcome{StatusCancelled, 0}},
		{"post approved", StatusApproved, ActionPost, 2, 2, Outcome{StatusPosted, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.status, tc.action, tc.level, tc.total)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNextRejectsUnknownTransition(t *testing.T) {
	_, err := Next(StatusApproved, ActionApprove, 2, 2)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, StatusApproved, invalid.From)
	assert.Equal(t, ActionApprove, invalid.Action)
	assert.Equal(t, []Action{ActionPost}, invalid.Allowed)
	assert.Contains(t, err.Error(), "POST")
}

func TestNextTerminalStatuses(t *testing.T) {
	for _, status := range []Status{StatusPosted, StatusRejected, StatusCancelled} {
		for _, action := range []Action{ActionSubmit, ActionApprove, ActionCancel, ActionPost} {
			_, err := Next(status, action, 1, 1)
			require.ErrorIs(t, err, ErrDocumentTerminal, "%s/%s", status, action)
			require.NotErrorIs(t, err, ErrInvalidTransition)
		}
	}
}

func TestNextGuardMismatchIsInconsistent(t *testing.T) {
	_, err := Next(StatusSubmitted, ActionApprove, 0, 2)
	require.ErrorIs(t, err, ErrInconsistentState)

	_, err = Next(StatusSubmitted, ActionApprove, 3, 2)
	require.ErrorIs(t, err, ErrInconsistentState)
}

func TestAllowedActions(t *testing.T) {
	assert.Equal(t, []Action{ActionSubmit, ActionCancel}, AllowedActions(StatusDraft))
	assert.Equal(t, []Action{ActionApprove, ActionReject, ActionRequestRevision, ActionCancel}, AllowedActions(StatusSubmitted))
	assert.Equal(t, []Action{ActionSubmit, ActionCancel}, AllowedActions(StatusRevisionRequested))
	assert.Equal(t, []Action{ActionPost}, AllowedActions(StatusApproved))
	assert.Empty(t, AllowedActions(StatusPosted))
	assert.Empty(t, AllowedActions(StatusRejected))
	assert.Empty(t, AllowedActions(StatusCancelled))
}

func TestCanApply(t *testing.T) {
	assert.True(t, CanApply(StatusSubmitted, ActionReject))
	assert.False(t, CanApply(StatusDraft, ActionApprove))
	assert.False(t, CanApply(StatusApproved, ActionCancel))
}

func TestCheckConsistency(t *testing.T) {
	ok := []SalesDocument{
		{Status: StatusDraft},
		{Status: StatusSubmitted, CurrentLevel: 1, TotalLevels: 2},
		{Status: StatusRejected, CurrentLevel: 2, TotalLevels: 2},
		{Status: StatusRevisionRequested, TotalLevels: 2},
		{Status: StatusApproved},
		{Status: StatusApproved, CurrentLevel: 2, TotalLevels: 2},
		{Status: StatusPosted, CurrentLevel: 2, TotalLevels: 2},
		{Status: StatusCancelled, CurrentLevel: 1, TotalLevels: 2},
	}
	for _, doc := range ok {
		require.NoError(t, CheckConsistency(doc), "%+v", doc)
	}

	bad := []SalesDocument{
		{Status: StatusDraft, CurrentLevel: 1, TotalLevels: 1},
		{Status: StatusSubmitted, TotalLevels: 2},
		{Status: StatusSubmitted, CurrentLevel: 3, TotalLevels: 2},
		{Status: StatusApproved, CurrentLevel: 1, TotalLevels: 2},
		{Status: "ARCHIVED"},
	}
	for _, doc := range bad {
		require.ErrorIs(t, CheckConsistency(doc), ErrInconsistentState, "%+v", doc)
	}
}
