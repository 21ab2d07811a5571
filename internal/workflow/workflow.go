// Package workflow implements the maker-checker engine. Every governed kind
// runs the same state machine: a proposal freezes a full snapshot of the
// intended record, an authoriser approves or rejects it, and approval replays
// the snapshot onto the authoritative table.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"secmaster/internal/models"
	"secmaster/internal/notifications"
	"secmaster/internal/observability"
	"secmaster/internal/repository"

	"dario.cat/mergo"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// EntityPtr is satisfied by pointers to authoritative records.
type EntityPtr[E any, F any] interface {
	*E
	Meta() *models.EntityMeta
	Data() *F
}

// PendingPtr is satisfied by pointers to change requests.
type PendingPtr[P any, F any] interface {
	*P
	Request() *models.PendingMeta
	Data() *F
}

// Outcome tells how an approval affected the authoritative record.
type Outcome string

const (
	// OutcomeApplied means the snapshot was materialized.
	OutcomeApplied Outcome = "applied"
	// OutcomeTargetMissing means the record was gone by approval time. The
	// request is still approved.
	OutcomeTargetMissing Outcome = "target_missing"
)

// Materialization is the result of an approval.
type Materialization[E any, P any] struct {
	Request *P      `json:"request"`
	Entity  *E      `json:"entity,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// Workflow is the approval engine for one kind. F is the kind's field set, E
// its authoritative record and P its change request.
type Workflow[F any, E any, P any, PE EntityPtr[E, F], PP PendingPtr[P, F]] struct {
	db       *gorm.DB
	kind     Kind[F]
	entities *repository.Store[E]
	pending  *repository.Store[P]
	notify   *Dispatcher
	log      *observability.WorkflowLogger
	now      func() time.Time
}

// New builds an engine. notify may be nil.
func New[F any, E any, P any, PE EntityPtr[E, F], PP PendingPtr[P, F]](db *gorm.DB, kind Kind[F], notify *Dispatcher) *Workflow[F, E, P, PE, PP] {
	return &Workflow[F, E, P, PE, PP]{
		db:       db,
		kind:     kind,
		entities: repository.NewStore[E](db, kind.Label),
		pending:  repository.NewStore[P](db, kind.Label+" request"),
		notify:   notify,
		log:      observability.NewWorkflowLogger(kind.Name),
		now:      time.Now,
	}
}

// Kind returns the machine name of the governed kind.
func (w *Workflow[F, E, P, PE, PP]) Kind() string { return w.kind.Name }

// Label returns the display name of the governed kind.
func (w *Workflow[F, E, P, PE, PP]) Label() string { return w.kind.Label }

// SetClock replaces the time source.
func (w *Workflow[F, E, P, PE, PP]) SetClock(now func() time.Time) { w.now = now }

// ProposeCreate stores a create request for fields and notifies the authoriser.
func (w *Workflow[F, E, P, PE, PP]) ProposeCreate(ctx context.Context, fields F, requesterID, authoriserID uint) (*P, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "propose_create")
	defer span.End()

	if err := checkActors(requesterID, authoriserID); err != nil {
		return nil, w.fail(ctx, span, "propose_create", err)
	}

	snapshot := fields
	w.derive(&snapshot)

	var req *P
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.checkDuplicate(ctx, tx, &snapshot, nil); err != nil {
			return err
		}
		req = w.newRequest(models.RequestCreate, nil, snapshot, requesterID, authoriserID)
		return w.pending.WithTx(tx).Create(ctx, req)
	})
	if err != nil {
		return nil, w.fail(ctx, span, "propose_create", err)
	}

	w.proposed(ctx, req)
	return req, nil
}

// ProposeUpdate locks the target and stores an update request whose
// snapshot is the current record overridden by the non-nil proposed fields.
func (w *Workflow[F, E, P, PE, PP]) ProposeUpdate(ctx context.Context, targetID uint, fields F, requesterID, authoriserID uint) (*P, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "propose_update",
		attribute.Int64("workflow.target_id", int64(targetID)))
	defer span.End()

	if err := checkActors(requesterID, authoriserID); err != nil {
		return nil, w.fail(ctx, span, "propose_update", err)
	}

	var req *P
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entities := w.entities.WithTx(tx)
		if err := entities.AcquireLock(ctx, targetID); err != nil {
			return err
		}
		current, err := entities.Find(ctx, targetID)
		if err != nil {
			return err
		}
		snapshot, err := merge(fields, *PE(current).Data())
		if err != nil {
			return err
		}
		w.derive(&snapshot)
		if err := w.checkDuplicate(ctx, tx, &snapshot, &targetID); err != nil {
			return err
		}
		req = w.newRequest(models.RequestUpdate, &targetID, snapshot, requesterID, authoriserID)
		return w.pending.WithTx(tx).Create(ctx, req)
	})
	if err != nil {
		return nil, w.fail(ctx, span, "propose_update", err)
	}

	w.proposed(ctx, req)
	return req, nil
}

// ProposeDelete locks the target and stores a delete request carrying only
// the target's identifying fields.
func (w *Workflow[F, E, P, PE, PP]) ProposeDelete(ctx context.Context, targetID uint, requesterID, authoriserID uint) (*P, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "propose_delete",
		attribute.Int64("workflow.target_id", int64(targetID)))
	defer span.End()

	if err := checkActors(requesterID, authoriserID); err != nil {
		return nil, w.fail(ctx, span, "propose_delete", err)
	}

	var req *P
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entities := w.entities.WithTx(tx)
		if err := entities.AcquireLock(ctx, targetID); err != nil {
			return err
		}
		current, err := entities.Find(ctx, targetID)
		if err != nil {
			return err
		}
		snapshot := *PE(current).Data()
		if w.kind.Identify != nil {
			snapshot = w.kind.Identify(snapshot)
		}
		req = w.newRequest(models.RequestDelete, &targetID, snapshot, requesterID, authoriserID)
		return w.pending.WithTx(tx).Create(ctx, req)
	})
	if err != nil {
		return nil, w.fail(ctx, span, "propose_delete", err)
	}

	w.proposed(ctx, req)
	return req, nil
}

// Approve marks the request approved and materializes its snapshot. A target
// deleted since the proposal yields OutcomeTargetMissing, not an error.
func (w *Workflow[F, E, P, PE, PP]) Approve(ctx context.Context, pendingID, actorID uint) (*Materialization[E, P], error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "approve",
		attribute.Int64("workflow.request_id", int64(pendingID)))
	defer span.End()

	if actorID == 0 {
		return nil, w.fail(ctx, span, "approve", models.NewValidationError("actor is required"))
	}

	var result *Materialization[E, P]
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := w.now()
		req, err := w.transition(ctx, tx, pendingID, models.PendingStatusApproved, actorID, now, nil)
		if err != nil {
			return err
		}
		result, err = w.materialize(ctx, tx, req, actorID, now)
		return err
	})
	if err != nil {
		return nil, w.fail(ctx, span, "approve", err)
	}

	meta := PP(result.Request).Request()
	span.AddAttributes(attribute.String("workflow.outcome", string(result.Outcome)))
	w.record(ctx, "approved", meta, actorID, slog.String("outcome", string(result.Outcome)))
	w.notify.Notify(ctx, w.notice(notifications.EventProposalApproved, meta, meta.RequestedBy, ""))
	return result, nil
}

func (w *Workflow[F, E, P, PE, PP]) materialize(ctx context.Context, tx *gorm.DB, req *P, actorID uint, now time.Time) (*Materialization[E, P], error) {
	meta := PP(req).Request()
	entity, outcome, err := w.apply(ctx, tx, meta.RequestType, meta.TargetID, *PP(req).Data(), meta.RequestedBy, actorID, now)
	if err != nil {
		return nil, err
	}
	return &Materialization[E, P]{Request: req, Entity: entity, Outcome: outcome}, nil
}

// apply replays snapshot onto the authoritative table. Creates and updates
// are attributed to requestedBy; the approver is stamped separately.
func (w *Workflow[F, E, P, PE, PP]) apply(ctx context.Context, tx *gorm.DB, kind models.RequestType, targetID *uint, snapshot F, requestedBy, actorID uint, now time.Time) (*E, Outcome, error) {
	entities := w.entities.WithTx(tx)

	if kind == models.RequestCreate {
		entity := new(E)
		*PE(entity).Data() = snapshot
		em := PE(entity).Meta()
		em.ApprovalStatus = models.EntityStatusActive
		em.CreatedBy = models.Ptr(requestedBy)
		em.ApprovedBy = models.Ptr(actorID)
		em.ApprovedAt = models.Ptr(now)
		if err := entities.Create(ctx, entity); err != nil {
			return nil, "", err
		}
		return entity, OutcomeApplied, nil
	}

	if targetID == nil {
		return nil, OutcomeTargetMissing, nil
	}
	entity, err := entities.Find(ctx, *targetID)
	if models.HasCode(err, models.CodeNotFound) {
		return nil, OutcomeTargetMissing, nil
	}
	if err != nil {
		return nil, "", err
	}

	em := PE(entity).Meta()
	em.ApprovalStatus = models.EntityStatusActive
	em.UpdatedBy = models.Ptr(requestedBy)
	em.ApprovedBy = models.Ptr(actorID)
	em.ApprovedAt = models.Ptr(now)

	switch kind {
	case models.RequestUpdate:
		*PE(entity).Data() = snapshot
		if err := entities.Save(ctx, entity); err != nil {
			return nil, "", err
		}
	case models.RequestDelete:
		if err := entities.Save(ctx, entity); err != nil {
			return nil, "", err
		}
		if err := entities.Delete(ctx, entity); err != nil {
			return nil, "", err
		}
	default:
		return nil, "", models.NewValidationError("unknown request type " + string(kind))
	}
	return entity, OutcomeApplied, nil
}

// Reject marks the request rejected with reason and releases the target.
func (w *Workflow[F, E, P, PE, PP]) Reject(ctx context.Context, pendingID, actorID uint, reason string) (*P, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "reject",
		attribute.Int64("workflow.request_id", int64(pendingID)))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, w.fail(ctx, span, "reject", models.NewValidationError("a rejection reason is required"))
	}
	if actorID == 0 {
		return nil, w.fail(ctx, span, "reject", models.NewValidationError("actor is required"))
	}

	var req *P
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = w.transition(ctx, tx, pendingID, models.PendingStatusRejected, actorID, w.now(), &reason)
		if err != nil {
			return err
		}
		meta := PP(req).Request()
		if meta.RequestType != models.RequestCreate && meta.TargetID != nil {
			return w.entities.WithTx(tx).ReleaseLock(ctx, *meta.TargetID)
		}
		return nil
	})
	if err != nil {
		return nil, w.fail(ctx, span, "reject", err)
	}

	meta := PP(req).Request()
	w.record(ctx, "rejected", meta, actorID)
	w.notify.Notify(ctx, w.notice(notifications.EventProposalRejected, meta, meta.RequestedBy, reason))
	return req, nil
}

// transition moves a pending request to status in one conditional update and
// returns the updated row.
func (w *Workflow[F, E, P, PE, PP]) transition(ctx context.Context, tx *gorm.DB, pendingID uint, status models.PendingStatus, actorID uint, now time.Time, reason *string) (*P, error) {
	store := w.pending.WithTx(tx)
	extra := map[string]any{"reviewed_by": actorID, "reviewed_at": now}
	if reason != nil {
		extra["rejection_reason"] = *reason
	}
	ok, err := store.CompareAndSet(ctx, pendingID, "approval_status", models.PendingStatusPending, status, extra)
	if err != nil {
		return nil, err
	}
	req, err := store.Find(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotPendingError(w.pending.Resource(), pendingID, PP(req).Request().ApprovalStatus)
	}
	return req, nil
}

// ListPending returns open requests, newest first.
func (w *Workflow[F, E, P, PE, PP]) ListPending(ctx context.Context, page, pageSize int) (*repository.Page[P], error) {
	return w.pending.List(ctx, page, pageSize, "created_at DESC, id DESC", func(db *gorm.DB) *gorm.DB {
		return db.Where("approval_status = ?", models.PendingStatusPending)
	})
}

// GetPending loads one request in any status.
func (w *Workflow[F, E, P, PE, PP]) GetPending(ctx context.Context, pendingID uint) (*P, error) {
	return w.pending.Find(ctx, pendingID)
}

// Get loads a live record.
func (w *Workflow[F, E, P, PE, PP]) Get(ctx context.Context, id uint) (*E, error) {
	return w.entities.Find(ctx, id)
}

// List returns live records ordered by id.
func (w *Workflow[F, E, P, PE, PP]) List(ctx context.Context, page, pageSize int) (*repository.Page[E], error) {
	return w.entities.List(ctx, page, pageSize, "id ASC")
}

func (w *Workflow[F, E, P, PE, PP]) newRequest(kind models.RequestType, targetID *uint, snapshot F, requesterID, authoriserID uint) *P {
	req := new(P)
	meta := PP(req).Request()
	meta.TargetID = targetID
	meta.RequestType = kind
	meta.RequestedBy = requesterID
	meta.SelectedAuthoriserID = authoriserID
	meta.ApprovalStatus = models.PendingStatusPending
	*PP(req).Data() = snapshot
	return req
}

func (w *Workflow[F, E, P, PE, PP]) derive(f *F) {
	if w.kind.Derive != nil {
		w.kind.Derive(f, w.now())
	}
}

func (w *Workflow[F, E, P, PE, PP]) checkDuplicate(ctx context.Context, tx *gorm.DB, f *F, targetID *uint) error {
	if w.kind.CheckDuplicate == nil {
		return nil
	}
	return w.kind.CheckDuplicate(ctx, tx, f, targetID)
}

func (w *Workflow[F, E, P, PE, PP]) proposed(ctx context.Context, req *P) {
	meta := PP(req).Request()
	w.record(ctx, "proposed_"+string(meta.RequestType), meta, meta.RequestedBy)
	w.notify.Notify(ctx, w.notice(notifications.EventProposalPending, meta, meta.SelectedAuthoriserID, ""))
}

func (w *Workflow[F, E, P, PE, PP]) notice(event notifications.Event, meta *models.PendingMeta, recipientID uint, reason string) Notice {
	return Notice{
		Event:       event,
		Kind:        w.kind.Name,
		Label:       w.kind.Label,
		RequestID:   meta.ID,
		RequestType: meta.RequestType,
		RecipientID: recipientID,
		Reason:      reason,
	}
}

func (w *Workflow[F, E, P, PE, PP]) record(ctx context.Context, transition string, meta *models.PendingMeta, actorID uint, attrs ...slog.Attr) {
	observability.WorkflowTransitions.WithLabelValues(w.kind.Name, transition).Inc()
	w.log.LogTransition(ctx, transition, meta.ID, actorID, attrs...)
}

// fail records err on the span and in metrics and returns it unchanged.
func (w *Workflow[F, E, P, PE, PP]) fail(ctx context.Context, span *observability.Span, operation string, err error) error {
	span.SetError(err)
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		observability.WorkflowConflicts.WithLabelValues(w.kind.Name, appErr.Code).Inc()
		return err
	}
	w.log.LogError(ctx, operation, err)
	return err
}

// merge overlays proposed onto current: every nil field of proposed takes
// the current value. Explicit nulls cannot be told apart from omissions.
func merge[F any](proposed, current F) (F, error) {
	if err := mergo.Merge(&proposed, current, mergo.WithoutDereference); err != nil {
		return proposed, models.NewInternalError(err)
	}
	return proposed, nil
}

func checkActors(requesterID, authoriserID uint) error {
	if requesterID == 0 {
		return models.NewValidationError("requester is required")
	}
	if authoriserID == 0 {
		return models.NewValidationError("an authoriser must be selected")
	}
	return nil
}
