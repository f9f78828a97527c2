package approval

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("approval: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("approval: invalid input")
	// ErrInvalidTransition indicates the action is not legal from the current status.
	ErrInvalidTransition = errors.New("approval: invalid transition")
	// ErrNotEligible indicates the actor may not act at the current level.
	ErrNotEligible = errors.New("approval: actor not eligible")
	// ErrDocumentTerminal indicates the document is closed.
	ErrDocumentTerminal = errors.New("approval: document is in terminal state")
	// ErrConfigMissing indicates an administrative misconfiguration.
	ErrConfigMissing = errors.New("approval: configuration missing")
	// ErrConcurrentModification indicates another actor changed the document first.
	// Callers may reload the document and retry once.
	ErrConcurrentModification = errors.New("approval: concurrent modification")
	// ErrDuplicateNumber indicates the document number is taken for the tenant and type.
	ErrDuplicateNumber = errors.New("approval: duplicate document number")
)

// InvalidTransitionError names the refused transition and the legal alternatives.
type InvalidTransitionError struct {
	From    Status
	Action  Action
	Allowed []Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("approval: cannot %s a %s document (allowed: %s)", e.Action, e.From, joinActions(e.Allowed))
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotEligibleError names the roles required at the level.
type NotEligibleError struct {
	ActorID       int64
	LevelIndex    int
	RequiredRoles []int64
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("approval: actor %d is not eligible at level %d (requires one of roles %v)", e.ActorID, e.LevelIndex, e.RequiredRoles)
}

// Is matches ErrNotEligible.
func (e *NotEligibleError) Is(target error) bool { return target == ErrNotEligible }

// DocumentTerminalError reports the closed status.
type DocumentTerminalError struct {
	DocumentID int64
	Status     Status
}

func (e *DocumentTerminalError) Error() string {
	return fmt.Sprintf("approval: document %d is in terminal state %s", e.DocumentID, e.Status)
}

// Is matches ErrDocumentTerminal.
func (e *DocumentTerminalError) Is(target error) bool { return target == ErrDocumentTerminal }

// ConfigMissingError reports the configuration that could not be found.
// LevelIndex is zero when the whole document type is unconfigured.
type ConfigMissingError struct {
	TenantID     int64
	DocumentType DocumentType
	LevelIndex   int
}

func (e *ConfigMissingError) Error() string {
	if e.LevelIndex == 0 {
		return fmt.Sprintf("approval: no approval configuration for tenant %d document type %s", e.TenantID, e.DocumentType)
	}
	return fmt.Sprintf("approval: no approval level %d configured for tenant %d document type %s", e.LevelIndex, e.TenantID, e.DocumentType)
}

// Is matches ErrConfigMissing.
func (e *ConfigMissingError) Is(target error) bool { return target == ErrConfigMissing }

// Retryable reports whether err is safe to retry after reloading the document.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

func joinActions(actions []Action) string {
	if len(actions) == 0 {
		return "none"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
