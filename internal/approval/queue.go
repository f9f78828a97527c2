package approval

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

const defaultPendingLimit = 20

// MaxPendingPage bounds the inbox page number so the row offset stays small.
const MaxPendingPage = 100000

// PendingPage is one page of an approval inbox.
type PendingPage struct {
	Items      []SalesDocument   `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListPending returns SUBMITTED documents waiting at a level the actor may act
// at, oldest document date first with id as tie-break.
func (s *Service) ListPending(ctx context.Context, q PendingQuery) (PendingPage, error) {
	if q.TenantID <= 0 || !q.DocumentType.Valid() {
		return PendingPage{}, fmt.Errorf("%w: tenant and document type required", ErrValidation)
	}
	page, limit := q.Page, q.Limit
	if page > MaxPendingPage {
		return PendingPage{}, fmt.Errorf("%w: page must not exceed %d", ErrValidation, MaxPendingPage)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > s.pendingMaxLimit {
		limit = s.pendingMaxLimit
	}

	snap, err := s.configs.Snapshot(ctx, q.TenantID, q.DocumentType)
	if err != nil {
		return PendingPage{}, err
	}
	levels := EligibleLevels(snap, q.Actor)
	if levels != nil && len(levels) == 0 {
		return PendingPage{Items: []SalesDocument{}, Pagination: shared.NewPagination(page, limit, 0)}, nil
	}

	docs, total, err := s.repo.ListPending(ctx, PendingFilter{
		TenantID:     q.TenantID,
		DocumentType: q.DocumentType,
		Levels:       levels,
		Limit:        limit,
		Offset:       (page - 1) * limit,
	})
	if err != nil {
		return PendingPage{}, err
	}
	if docs == nil {
		docs = []SalesDocument{}
	}
	return PendingPage{Items: docs, Pagination: shared.NewPagination(page, limit, total)}, nil
}
