package approval

import (
	"errors"
	"fmt"
)

// ErrInconsistentState indicates a stored document violates the status/level invariant.
var ErrInconsistentState = errors.New("approval: inconsistent document state")

// Outcome is the (status, level) pair a transition produces.
type Outcome struct {
	Status       Status
	CurrentLevel int
}

type transition struct {
	From   Status
	Action Action
	To     Status
	// Guard selects between rows sharing (From, Action). Nil always matches.
	Guard func(level, total int) bool
	Level func(level, total int) int
}

func keepLevel(level, _ int) int { return level }
func firstLevel(_, _ int) int    { return 1 }
func zeroLevel(_, _ int) int     { return 0 }
func nextLevel(level, _ int) int { return level + 1 }

func hasLevels(_, total int) bool       { return total > 0 }
func noLevels(_, total int) bool        { return total == 0 }
func belowLast(level, total int) bool   { return level >= 1 && level < total }
func atLast(level, total int) bool      { return level >= 1 && level == total }
func withinChain(level, total int) bool { return level >= 1 && level <= total }

// transitions is the complete table of legal moves. Anything absent is refused.
var transitions = []transition{
	{From: StatusDraft, Action: ActionSubmit, To: StatusSubmitted, Guard: hasLevels, Level: firstLevel},
	{From: StatusDraft, Action: ActionSubmit, To: StatusApproved, Guard: noLevels, Level: zeroLevel},
	{From: StatusSubmitted, Action: ActionApprove, To: StatusSubmitted, Guard: belowLast, Level: nextLevel},
	{From: StatusSubmitted, Action: ActionApprove, To: StatusApproved, Guard: atLast, Level: keepLevel},
	{From: StatusSubmitted, Action: ActionReject, To: StatusRejected, Guard: withinChain, Level: keepLevel},
	{From: StatusSubmitted, Action: ActionRequestRevision, To: StatusRevisionRequested, Guard: withinChain, Level: zeroLevel},
	{From: StatusRevisionRequested, Action: ActionSubmit, To: StatusSubmitted, Guard: hasLevels, Level: firstLevel},
	{From: StatusRevisionRequested, Action: ActionSubmit, To: StatusApproved, Guard: noLevels, Level: zeroLevel},
	{From: StatusDraft, Action: ActionCancel, To: StatusCancelled, Level: keepLevel},
	{From: StatusSubmitted, Action: ActionCancel, To: StatusCancelled, Level: keepLevel},
	{From: StatusRevisionRequested, Action: ActionCancel, To: StatusCancelled, Level: keepLevel},
	{From: StatusApproved, Action: ActionPost, To: StatusPosted, Level: keepLevel},
}

// AllowedActions returns the actions legal from status, in table order.
func AllowedActions(status Status) []Action {
	var allowed []Action
	seen := make(map[Action]struct{})
	for _, t := range transitions {
		if t.From != status {
			continue
		}
		if _, ok := seen[t.Action]; ok {
			continue
		}
		seen[t.Action] = struct{}{}
		allowed = append(allowed, t.Action)
	}
	return allowed
}

// CanApply reports whether action is legal from status regardless of level.
func CanApply(status Status, action Action) bool {
	for _, t := range transitions {
		if t.From == status && t.Action == action {
			return true
		}
	}
	return false
}

// Next computes the outcome of applying action to a document at (status, level)
// whose chain has total levels. For submissions total is the fresh snapshot.
func Next(status Status, action Action, level, total int) (Outcome, error) {
	if status.Terminal() {
		return Outcome{}, &DocumentTerminalError{Status: status}
	}
	matched := false
	for _, t := range transitions {
		if t.From != status || t.Action != action {
			continue
		}
		matched = true
		if t.Guard != nil && !t.Guard(level, total) {
			continue
		}
		return Outcome{Status: t.To, CurrentLevel: t.Level(level, total)}, nil
	}
	if matched {
		return Outcome{}, fmt.Errorf("%w: %s at level %d of %d", ErrInconsistentState, status, level, total)
	}
	return Outcome{}, &InvalidTransitionError{From: status, Action: action, Allowed: AllowedActions(status)}
}

// CheckConsistency verifies the status/level invariant of a document.
func CheckConsistency(doc SalesDocument) error {
	level, total := doc.CurrentLevel, doc.TotalLevels
	if total < 0 || level < 0 || level > total {
		return fmt.Errorf("%w: level %d outside 0..%d", ErrInconsistentState, level, total)
	}
	ok := true
	switch doc.Status {
	case StatusDraft, StatusRevisionRequested:
		ok = level == 0
	case StatusSubmitted, StatusRejected:
		ok = level >= 1
	case StatusApproved, StatusPosted:
		ok = level == total
	case StatusCancelled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInconsistentState, doc.Status)
	}
	if !ok {
		return fmt.Errorf("%w: status %s with level %d of %d", ErrInconsistentState, doc.Status, level, total)
	}
	return nil
}
