package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository describes the document persistence used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (SalesDocument, error)
	ListPending(ctx context.Context, filter PendingFilter) ([]SalesDocument, int, error)
	ListActions(ctx context.Context, documentID int64) ([]ActionRecord, error)
}

// TxRepository exposes the transactional operations. Action records are insert-only.
type TxRepository interface {
	// GetDocumentForUpdate reads the document and holds a row lock on it.
	GetDocumentForUpdate(ctx context.Context, id int64) (SalesDocument, error)
	InsertDocument(ctx context.Context, doc SalesDocument) (int64, error)
	// SwapDocumentState writes next only when the stored row still matches
	// expected, otherwise it returns ErrConcurrentModification.
	SwapDocumentState(ctx context.Context, next SalesDocument, expected StateStamp) error
	AppendAction(ctx context.Context, record ActionRecord) error
}

// AuditSink receives committed actions for long-term audit storage.
type AuditSink interface {
	RecordApproval(ctx context.Context, doc SalesDocument, record ActionRecord) error
}

// Notifier hands committed actions to the notification pipeline.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Observer counts action outcomes.
type Observer interface {
	ObserveAction(docType DocumentType, action Action, outcome string)
}

// IdentityPort is the identity/role collaborator.
type IdentityPort interface {
	ActorRoleIDs(ctx context.Context, tenantID, actorID int64) ([]int64, error)
	IsSuperAdmin(ctx context.Context, tenantID, actorID int64) (bool, error)
}

// ResolveActor builds the Actor for a tenant-scoped user.
func ResolveActor(ctx context.Context, identity IdentityPort, tenantID, actorID int64) (Actor, error) {
	roles, err := identity.ActorRoleIDs(ctx, tenantID, actorID)
	if err != nil {
		return Actor{}, fmt.Errorf("resolve actor roles: %w", err)
	}
	super, err := identity.IsSuperAdmin(ctx, tenantID, actorID)
	if err != nil {
		return Actor{}, fmt.Errorf("resolve super admin: %w", err)
	}
	return Actor{ID: actorID, RoleIDs: roles, SuperAdmin: super}, nil
}

// Options configures optional collaborators of Service.
type Options struct {
	Audit    AuditSink
	Notifier Notifier
	Observer Observer
	Logger   *slog.Logger
	Clock    func() time.Time
	// RequireExplicitConfig refuses submission for document types whose
	// configuration was never saved. An explicitly saved empty list still
	// means no approval is required.
	RequireExplicitConfig bool
	PendingMaxLimit       int
}

// Service is the approval action processor.
type Service struct {
	repo                  Repository
	configs               SnapshotSource
	resolver              *Resolver
	audit                 AuditSink
	notifier              Notifier
	observer              Observer
	logger                *slog.Logger
	now                   func() time.Time
	requireExplicitConfig bool
	pendingMaxLimit       int
}

// NewService constructs the approval service.
func NewService(repo Repository, configs SnapshotSource, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	maxLimit := opts.PendingMaxLimit
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Service{
		repo:                  repo,
		configs:               configs,
		resolver:              NewResolver(configs),
		audit:                 opts.Audit,
		notifier:              opts.Notifier,
		observer:              opts.Observer,
		logger:                logger,
		now:                   clock,
		requireExplicitConfig: opts.RequireExplicitConfig,
		pendingMaxLimit:       maxLimit,
	}
}

// Resolver exposes the eligibility resolver used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// CreateDraft registers a new DRAFT document outside the approval chain.
func (s *Service) CreateDraft(ctx context.Context, input DraftInput) (SalesDocument, error) {
	if err := validateDraft(input); err != nil {
		return SalesDocument{}, err
	}
	now := s.now().UTC()
	doc := SalesDocument{
		TenantID:     input.TenantID,
		DocumentType: input.DocumentType,
		Number:       strings.TrimSpace(input.Number),
		Status:       StatusDraft,
		DocumentDate: input.DocumentDate,
		Total:        input.Total,
		CurrencyCode: strings.ToUpper(strings.TrimSpace(input.CurrencyCode)),
		PersonID:     input.PersonID,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	})
	if err != nil {
		return SalesDocument{}, err
	}
	return doc, nil
}

func validateDraft(input DraftInput) error {
	switch {
	case input.TenantID <= 0:
		return fmt.Errorf("%w: tenant id required", ErrValidation)
	case !input.DocumentType.Valid():
		return fmt.Errorf("%w: unknown document type %q", ErrValidation, input.DocumentType)
	case strings.TrimSpace(input.Number) == "":
		return fmt.Errorf("%w: number required", ErrValidation)
	case input.DocumentDate.IsZero():
		return fmt.Errorf("%w: document date required", ErrValidation)
	case len(strings.TrimSpace(input.CurrencyCode)) != 3:
		return fmt.Errorf("%w: currency code must have 3 letters", ErrValidation)
	}
	return nil
}

// Get loads a document of the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (SalesDocument, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return SalesDocument{}, err
	}
	if doc.TenantID != tenantID {
		return SalesDocument{}, ErrNotFound
	}
	return doc, nil
}

// History returns the action records of a document, oldest first.
func (s *Service) History(ctx context.Context, tenantID, id int64) ([]ActionRecord, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.repo.ListActions(ctx, id)
}

// Submit moves a DRAFT or REVISION_REQUESTED document into the chain.
func (s *Service) Submit(ctx context.Context, tenantID, id int64, actor Actor, notes string) (SalesDocument, error) {
	return s.Apply(ctx, ActionRequest{TenantID: tenantID, DocumentID: id, Action: ActionSubmit, Actor: actor, Notes: notes})
}

// Approve signs off the current level.
func (s *Service) Approve(ctx context.Context, tenantID, id int64, actor Actor, notes string) (SalesDocument, error) {
	return s.Apply(ctx, ActionRequest{TenantID: tenantID, DocumentID: id, Action: ActionApprove, Actor: actor, Notes: notes})
}

// Reject closes the document at the current level.
func (s *Service) Reject(ctx context.Context, tenantID, id int64, actor Actor, notes string) (SalesDocument, error) {
	return s.Apply(ctx, ActionRequest{TenantID: tenantID, DocumentID: id, Action: ActionReject, Actor: actor, Notes: notes})
}

// RequestRevision sends the document back to its author.
func (s *Service) RequestRevision(ctx context.Context, tenantID, id int64, actor Actor, notes string) (SalesDocument, error) {
	return s.Apply(ctx, ActionRequest{TenantID: tenantID, DocumentID: id, Action: ActionRequestRevision, Actor: actor, Notes: notes})
}

// Cancel withdraws a document that is not yet approved.
func (s *Service) Cancel(ctx context.Context, tenantID, id int64, actor Actor, notes string) (SalesDocument, error) {
	return s.Apply(ctx, ActionRequest{TenantID: tenantID, DocumentID: id, Action: ActionCancel, Actor: actor, Notes: notes})
}

// Post finalises an approved document.
func (s *Service) Post(ctx context.Context, tenantID, id int64, actor Actor, notes string) (SalesDocument, error) {
	return s.Apply(ctx, ActionRequest{TenantID: tenantID, DocumentID: id, Action: ActionPost, Actor: actor, Notes: notes})
}

// Apply runs one action against a document. The state change and its action
// record commit together or not at all.
func (s *Service) Apply(ctx context.Context, req ActionRequest) (SalesDocument, error) {
	var (
		before  SalesDocument
		updated SalesDocument
		record  ActionRecord
	)
	err := s.validateRequest(req)
	if err == nil {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			doc, err := tx.GetDocumentForUpdate(ctx, req.DocumentID)
			if err != nil {
				return err
			}
			if doc.TenantID != req.TenantID {
				return ErrNotFound
			}
			before = doc
			next, err := s.transition(ctx, doc, req)
			if err != nil {
				return err
			}
			if err := tx.SwapDocumentState(ctx, next, doc.Stamp()); err != nil {
				return err
			}
			record = ActionRecord{
				ID:           uuid.New(),
				DocumentID:   doc.ID,
				TenantID:     doc.TenantID,
				DocumentType: doc.DocumentType,
				LevelIndex:   doc.CurrentLevel,
				ActorID:      req.Actor.ID,
				Action:       req.Action,
				FromStatus:   doc.Status,
				ToStatus:     next.Status,
				SuperAdmin:   req.Actor.SuperAdmin,
				Notes:        strings.TrimSpace(req.Notes),
				At:           next.UpdatedAt,
			}
			if err := tx.AppendAction(ctx, record); err != nil {
				return err
			}
			updated = next
			return nil
		})
	}
	if err != nil {
		s.reportFailure(before, req, err)
		return SalesDocument{}, err
	}
	s.observe(updated.DocumentType, req.Action, "ok")
	s.logger.Info("approval action applied",
		slog.Int64("tenant_id", updated.TenantID),
		slog.Int64("document_id", updated.ID),
		slog.String("action", string(req.Action)),
		slog.Int64("actor_id", req.Actor.ID),
		slog.String("status", string(updated.Status)),
		slog.Int("level", updated.CurrentLevel),
	)
	s.afterCommit(ctx, updated, record)
	return updated, nil
}

func (s *Service) validateRequest(req ActionRequest) error {
	if req.TenantID <= 0 || req.DocumentID <= 0 {
		return fmt.Errorf("%w: tenant and document id required", ErrValidation)
	}
	if req.Actor.ID <= 0 {
		return fmt.Errorf("%w: actor required", ErrValidation)
	}
	switch req.Action {
	case ActionSubmit, ActionApprove, ActionReject, ActionRequestRevision, ActionCancel, ActionPost:
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", ErrValidation, req.Action)
}

// transition decides the next document state without touching storage.
func (s *Service) transition(ctx context.Context, doc SalesDocument, req ActionRequest) (SalesDocument, error) {
	if doc.Status.Terminal() {
		return SalesDocument{}, &DocumentTerminalError{DocumentID: doc.ID, Status: doc.Status}
	}
	if !CanApply(doc.Status, req.Action) {
		return SalesDocument{}, &InvalidTransitionError{From: doc.Status, Action: req.Action, Allowed: AllowedActions(doc.Status)}
	}
	total := doc.TotalLevels
	if req.Action == ActionSubmit {
		snap, err := s.configs.Snapshot(ctx, doc.TenantID, doc.DocumentType)
		if err != nil {
			return SalesDocument{}, err
		}
		if !snap.Configured && s.requireExplicitConfig {
			return SalesDocument{}, &ConfigMissingError{TenantID: doc.TenantID, DocumentType: doc.DocumentType}
		}
		total = snap.TotalLevels()
	}
	if req.Action.LevelGated() {
		if _, err := s.resolver.Authorize(ctx, req.Actor, doc.TenantID, doc.DocumentType, doc.CurrentLevel); err != nil {
			return SalesDocument{}, err
		}
	}
	out, err := Next(doc.Status, req.Action, doc.CurrentLevel, total)
	if err != nil {
		return SalesDocument{}, err
	}
	next := doc
	next.Status = out.Status
	next.CurrentLevel = out.CurrentLevel
	next.TotalLevels = total
	next.Version = doc.Version + 1
	next.UpdatedAt = s.now().UTC()
	if err := CheckConsistency(next); err != nil {
		return SalesDocument{}, err
	}
	return next, nil
}

func (s *Service) reportFailure(doc SalesDocument, req ActionRequest, err error) {
	attrs := []any{
		slog.Int64("tenant_id", req.TenantID),
		slog.Int64("document_id", req.DocumentID),
		slog.String("action", string(req.Action)),
		slog.Int64("actor_id", req.Actor.ID),
		slog.Any("error", err),
	}
	outcome := "error"
	switch {
	case errors.Is(err, ErrConfigMissing):
		outcome = "config_missing"
		s.logger.Error("approval configuration missing", attrs...)
	case errors.Is(err, ErrConcurrentModification):
		outcome = "conflict"
		s.logger.Warn("approval concurrent modification", attrs...)
	case errors.Is(err, ErrNotEligible):
		outcome = "not_eligible"
		s.logger.Info("approval action refused", attrs...)
	case errors.Is(err, ErrInvalidTransition):
		outcome = "invalid_transition"
		s.logger.Info("approval action refused", attrs...)
	case errors.Is(err, ErrDocumentTerminal):
		outcome = "terminal"
		s.logger.Info("approval action refused", attrs...)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation):
		outcome = "invalid"
	default:
		s.logger.Error("approval action failed", attrs...)
	}
	docType := doc.DocumentType
	if docType == "" {
		docType = "UNKNOWN"
	}
	s.observe(docType, req.Action, outcome)
}

func (s *Service) observe(docType DocumentType, action Action, outcome string) {
	if s.observer != nil {
		s.observer.ObserveAction(docType, action, outcome)
	}
}

// afterCommit forwards the committed action. Failures are logged only; the
// action itself already succeeded.
func (s *Service) afterCommit(ctx context.Context, doc SalesDocument, record ActionRecord) {
	if s.audit != nil {
		if err := s.audit.RecordApproval(ctx, doc, record); err != nil {
			s.logger.Warn("approval audit sink", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}
	if s.notifier == nil {
		return
	}
	event := Event{
		TenantID:     doc.TenantID,
		DocumentID:   doc.ID,
		DocumentType: doc.DocumentType,
		Number:       doc.Number,
		Action:       record.Action,
		ActorID:      record.ActorID,
		Status:       doc.Status,
		CurrentLevel: doc.CurrentLevel,
		At:           record.At,
	}
	if doc.Status == StatusSubmitted {
		roles, err := s.resolver.EligibleRoles(ctx, doc.TenantID, doc.DocumentType, doc.CurrentLevel)
		if err != nil {
			s.logger.Warn("approval next roles", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
		event.NextRoleIDs = roles
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("approval notify", slog.Int64("document_id", doc.ID), slog.Any("error", err))
	}
}
