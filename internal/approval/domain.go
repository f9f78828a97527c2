package approval

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType identifies an independently configurable sales document kind.
type DocumentType string

const (
	DocumentTypeSalesOrder      DocumentType = "SALES_ORDER"
	DocumentTypeSalesInvoice    DocumentType = "SALES_INVOICE"
	DocumentTypeSalesCreditNote DocumentType = "SALES_CREDIT_NOTE"
)

// DocumentTypes lists every supported document type.
var DocumentTypes = []DocumentType{
	DocumentTypeSalesOrder,
	DocumentTypeSalesInvoice,
	DocumentTypeSalesCreditNote,
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	for _, known := range DocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle status of a sales document.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusSubmitted         Status = "SUBMITTED"
	StatusRevisionRequested Status = "REVISION_REQUESTED"
	StatusRejected          Status = "REJECTED"
	StatusApproved          Status = "APPROVED"
	StatusPosted            Status = "POSTED"
	StatusCancelled         Status = "CANCELLED"
)

// Terminal reports whether no further action is accepted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusPosted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Action is an operation a caller requests on a document.
type Action string

const (
	ActionSubmit          Action = "SUBMIT"
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionRequestRevision Action = "REQUEST_REVISION"
	ActionCancel          Action = "CANCEL"
	ActionPost            Action = "POST"
)

// LevelGated reports whether the actor must be eligible at the current level.
func (a Action) LevelGated() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequestRevision:
		return true
	}
	return false
}

// SalesDocument is the approval-relevant header of an order, invoice or credit note.
type SalesDocument struct {
	ID           int64        `json:"id"`
	TenantID     int64        `json:"tenant_id"`
	DocumentType DocumentType `json:"document_type"`
	Number       string       `json:"number"`
	Status       Status       `json:"status"`
	CurrentLevel int          `json:"current_level"`
	TotalLevels  int          `json:"total_levels"`
	DocumentDate time.Time    `json:"document_date"`
	Total        float64      `json:"total"`
	CurrencyCode string       `json:"currency_code"`
	PersonID     int64        `json:"person_id"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Stamp returns the state the compare-and-swap update is guarded on.
func (d SalesDocument) Stamp() StateStamp {
	return StateStamp{Status: d.Status, CurrentLevel: d.CurrentLevel, Version: d.Version}
}

// StateStamp is the (status, level, version) triple read before a transition.
type StateStamp struct {
	Status       Status
	CurrentLevel int
	Version      int64
}

// LevelConfig is one approval level of a tenant's chain for a document type.
type LevelConfig struct {
	TenantID     int64        `json:"tenant_id"`
	DocumentType DocumentType `json:"document_type"`
	LevelIndex   int          `json:"level_index"`
	RoleIDs      []int64      `json:"role_ids"`
}

// LevelInput is a caller-supplied level; order defines sequence.
type LevelInput struct {
	LevelIndex int     `json:"level_index,omitempty" yaml:"level_index,omitempty"`
	RoleIDs    []int64 `json:"role_ids" yaml:"role_ids"`
}

// ActionRecord is an immutable entry of the approval history.
type ActionRecord struct {
	ID           uuid.UUID    `json:"id"`
	DocumentID   int64        `json:"document_id"`
	TenantID     int64        `json:"tenant_id"`
	DocumentType DocumentType `json:"document_type"`
	LevelIndex   int          `json:"level_index"`
	ActorID      int64        `json:"actor_id"`
	Action       Action       `json:"action"`
	FromStatus   Status       `json:"from_status"`
	ToStatus     Status       `json:"to_status"`
	SuperAdmin   bool         `json:"super_admin"`
	Notes        string       `json:"notes,omitempty"`
	At           time.Time    `json:"at"`
}

// Actor is the caller of an action with the roles resolved for its tenant.
type Actor struct {
	ID         int64
	RoleIDs    []int64
	SuperAdmin bool
}

// ActionRequest carries a single apply invocation.
type ActionRequest struct {
	TenantID   int64
	DocumentID int64
	Action     Action
	Actor      Actor
	Notes      string
}

// DraftInput registers a new DRAFT document.
type DraftInput struct {
	TenantID     int64
	DocumentType DocumentType
	Number       string
	DocumentDate time.Time
	Total        float64
	CurrencyCode string
	PersonID     int64
}

// PendingQuery selects the approval inbox of an actor.
type PendingQuery struct {
	TenantID     int64
	DocumentType DocumentType
	Actor        Actor
	Page         int
	Limit        int
}

// PendingFilter is the repository-level pending selection. A nil Levels
// slice selects every level.
type PendingFilter struct {
	TenantID     int64
	DocumentType DocumentType
	Levels       []int
	Limit        int
	Offset       int
}

// Event is published after a committed action.
type Event struct {
	TenantID     int64        `json:"tenant_id"`
	DocumentID   int64        `json:"document_id"`
	DocumentType DocumentType `json:"document_type"`
	Number       string       `json:"number"`
	Action       Action       `json:"action"`
	ActorID      int64        `json:"actor_id"`
	Status       Status       `json:"status"`
	CurrentLevel int          `json:"current_level"`
	NextRoleIDs  []int64      `json:"next_role_ids,omitempty"`
	At           time.Time    `json:"at"`
}
