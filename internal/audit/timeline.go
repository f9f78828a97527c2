package audit

import "time"

// EntitySalesDocument is the audit entity of approval actions.
const EntitySalesDocument = "sales_document"

// TimelineFilters holds the filters of the approval audit timeline.
type TimelineFilters struct {
	TenantID int64
	From     time.Time
	To       time.Time
	ActorID  int64
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry.
type TimelineRow struct {
	At         time.Time `json:"at"`
	ActorID    int64     `json:"actor_id"`
	Action     string    `json:"action"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	Number     string    `json:"number,omitempty"`
	Level      int       `json:"level"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// PagingInfo holds simple look-ahead paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// WindowParams selects a slice of the timeline.
type WindowParams struct {
	TenantID int64
	From     time.Time
	To       time.Time
	ActorID  int64
	EntityID string
	Action   string
	Offset   int
	Limit    int
}
