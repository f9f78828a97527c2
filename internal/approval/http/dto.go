package approvalhttp

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

const dateLayout = "2006-01-02"

type levelRequest struct {
	LevelIndex int     `json:"level_index,omitempty"`
	RoleIDs    []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
}

type replaceConfigRequest struct {
	Levels []levelRequest `json:"levels" validate:"max=50,dive"`
}

func (r replaceConfigRequest) inputs() []approval.LevelInput {
	out := make([]approval.LevelInput, 0, len(r.Levels))
	for _, l := range r.Levels {
		out = append(out, approval.LevelInput{LevelIndex: l.LevelIndex, RoleIDs: l.RoleIDs})
	}
	return out
}

type createDraftRequest struct {
	DocumentType string  `json:"document_type" validate:"required,oneof=SALES_ORDER SALES_INVOICE SALES_CREDIT_NOTE"`
	Number       string  `json:"number" validate:"required,max=64"`
	DocumentDate string  `json:"document_date" validate:"required,datetime=2006-01-02"`
	Total        float64 `json:"total" validate:"gte=0"`
	CurrencyCode string  `json:"currency_code" validate:"required,len=3,alpha"`
	PersonID     int64   `json:"person_id" validate:"gt=0"`
}

func (r createDraftRequest) input(tenantID int64) (approval.DraftInput, error) {
	date, err := time.Parse(dateLayout, r.DocumentDate)
	if err != nil {
		return approval.DraftInput{}, validationErr("document_date must be YYYY-MM-DD")
	}
	return approval.DraftInput{
		TenantID:     tenantID,
		DocumentType: approval.DocumentType(r.DocumentType),
		Number:       strings.TrimSpace(r.Number),
		DocumentDate: date,
		Total:        r.Total,
		CurrencyCode: r.CurrencyCode,
		PersonID:     r.PersonID,
	}, nil
}

type actionRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type documentResponse struct {
	approval.SalesDocument
	AllowedActions []approval.Action `json:"allowed_actions"`
}

func newDocumentResponse(doc approval.SalesDocument) documentResponse {
	allowed := approval.AllowedActions(doc.Status)
	if allowed == nil {
		allowed = []approval.Action{}
	}
	return documentResponse{SalesDocument: doc, AllowedActions: allowed}
}

type configResponse struct {
	DocumentType approval.DocumentType  `json:"document_type"`
	TotalLevels  int                    `json:"total_levels"`
	Levels       []approval.LevelConfig `json:"levels"`
}

func newConfigResponse(docType approval.DocumentType, levels []approval.LevelConfig) configResponse {
	if levels == nil {
		levels = []approval.LevelConfig{}
	}
	return configResponse{DocumentType: docType, TotalLevels: len(levels), Levels: levels}
}

type pendingResponse struct {
	Items      []documentResponse `json:"items"`
	Pagination shared.Pagination  `json:"pagination"`
}

type historyResponse struct {
	DocumentID int64                   `json:"document_id"`
	Actions    []approval.ActionRecord `json:"actions"`
}

func (h *Handler) validate(v any) error {
	if err := h.validator.Struct(v); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return validationErr(strings.Join(fields, "; "))
		}
		return validationErr(err.Error())
	}
	return nil
}

func validationErr(detail string) error {
	return fmt.Errorf("%w: %s", approval.ErrValidation, detail)
}
