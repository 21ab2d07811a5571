package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"secmaster/internal/models"
	"secmaster/internal/notifications"
	"secmaster/internal/observability"
	"secmaster/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionTarget is an engine that accepts JSON change requests through the
// pending-action pipeline. Every Workflow implements it.
type ActionTarget interface {
	Kind() string
	Label() string
	stageAction(ctx context.Context, tx *gorm.DB, action *models.PendingAction) error
	applyAction(ctx context.Context, tx *gorm.DB, action *models.PendingAction, actorID uint, now time.Time) (Outcome, error)
	releaseAction(ctx context.Context, tx *gorm.DB, action *models.PendingAction) error
}

// Actions runs the pending-action pipeline: change requests whose payload is
// stored as JSON. The payload is decoded into the target kind's typed fields
// on every step and re-encoded only for storage.
type Actions struct {
	db      *gorm.DB
	store   *repository.Store[models.PendingAction]
	targets map[string]ActionTarget
	notify  *Dispatcher
	log     *observability.WorkflowLogger
	now     func() time.Time
}

// NewActions builds the pipeline over targets, keyed by their kind name.
func NewActions(db *gorm.DB, notify *Dispatcher, targets ...ActionTarget) *Actions {
	a := &Actions{
		db:      db,
		store:   repository.NewStore[models.PendingAction](db, "Pending action"),
		targets: make(map[string]ActionTarget, len(targets)),
		notify:  notify,
		log:     observability.NewWorkflowLogger("pending_action"),
		now:     time.Now,
	}
	for _, t := range targets {
		a.targets[t.Kind()] = t
	}
	return a
}

// SetClock replaces the time source.
func (a *Actions) SetClock(now func() time.Time) { a.now = now }

// Propose validates data against modelType, snapshots it and stores the
// action. Updates and deletes take the target's approval lock.
func (a *Actions) Propose(ctx context.Context, modelType string, actionType models.RequestType, modelID *uint, data []byte, requesterID uint) (*models.PendingAction, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, "pending_action", "propose",
		attribute.String("workflow.model_type", modelType))
	defer span.End()

	target, err := a.target(modelType)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if !actionType.Valid() {
		return nil, models.NewValidationError("action_type must be create, update or delete")
	}
	if requesterID == 0 {
		return nil, models.NewValidationError("requester is required")
	}
	if actionType == models.RequestCreate && modelID != nil {
		return nil, models.NewValidationError("model_id must be empty for create actions")
	}
	if actionType != models.RequestCreate && modelID == nil {
		return nil, models.NewValidationError("model_id is required for update and delete actions")
	}

	action := &models.PendingAction{
		ActionType:  actionType,
		ModelType:   modelType,
		ModelID:     modelID,
		Data:        datatypes.JSON(data),
		Status:      models.PendingStatusPending,
		RequestedBy: requesterID,
	}
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := target.stageAction(ctx, tx, action); err != nil {
			return err
		}
		return a.store.WithTx(tx).Create(ctx, action)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.WorkflowTransitions.WithLabelValues(modelType, "action_proposed_"+string(actionType)).Inc()
	a.log.LogTransition(ctx, "proposed", action.ID, requesterID)
	return action, nil
}

// Approve applies the action's snapshot and marks it approved.
func (a *Actions) Approve(ctx context.Context, id, actorID uint) (*models.PendingAction, Outcome, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, "pending_action", "approve",
		attribute.Int64("workflow.request_id", int64(id)))
	defer span.End()

	if actorID == 0 {
		return nil, "", models.NewValidationError("actor is required")
	}

	var (
		action  *models.PendingAction
		outcome Outcome
	)
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := a.now()
		var err error
		action, err = a.transition(ctx, tx, id, models.PendingStatusApproved, actorID, now, nil)
		if err != nil {
			return err
		}
		target, err := a.target(action.ModelType)
		if err != nil {
			return err
		}
		outcome, err = target.applyAction(ctx, tx, action, actorID, now)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, "", err
	}

	observability.WorkflowTransitions.WithLabelValues(action.ModelType, "action_approved").Inc()
	a.log.LogTransition(ctx, "approved", action.ID, actorID)
	a.notify.Notify(ctx, a.notice(notifications.EventProposalApproved, action, ""))
	return action, outcome, nil
}

// Reject marks the action rejected and releases its target.
func (a *Actions) Reject(ctx context.Context, id, actorID uint, reason string) (*models.PendingAction, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, "pending_action", "reject",
		attribute.Int64("workflow.request_id", int64(id)))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("a rejection reason is required")
	}
	if actorID == 0 {
		return nil, models.NewValidationError("actor is required")
	}

	var action *models.PendingAction
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		action, err = a.transition(ctx, tx, id, models.PendingStatusRejected, actorID, a.now(), &reason)
		if err != nil {
			return err
		}
		target, err := a.target(action.ModelType)
		if err != nil {
			return err
		}
		return target.releaseAction(ctx, tx, action)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.WorkflowTransitions.WithLabelValues(action.ModelType, "action_rejected").Inc()
	a.log.LogTransition(ctx, "rejected", action.ID, actorID)
	a.notify.Notify(ctx, a.notice(notifications.EventProposalRejected, action, reason))
	return action, nil
}

// Get loads one action.
func (a *Actions) Get(ctx context.Context, id uint) (*models.PendingAction, error) {
	return a.store.Find(ctx, id)
}

// List returns actions in status (all when empty), newest first.
func (a *Actions) List(ctx context.Context, status models.PendingStatus, page, pageSize int) (*repository.Page[models.PendingAction], error) {
	var scopes []repository.Scope
	if status != "" {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) })
	}
	return a.store.List(ctx, page, pageSize, "created_at DESC, id DESC", scopes...)
}

func (a *Actions) transition(ctx context.Context, tx *gorm.DB, id uint, status models.PendingStatus, actorID uint, now time.Time, reason *string) (*models.PendingAction, error) {
	store := a.store.WithTx(tx)
	extra := map[string]any{"reviewed_by": actorID, "reviewed_at": now}
	if reason != nil {
		extra["rejection_reason"] = *reason
	}
	ok, err := store.CompareAndSet(ctx, id, "status", models.PendingStatusPending, status, extra)
	if err != nil {
		return nil, err
	}
	action, err := store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotPendingError(store.Resource(), id, action.Status)
	}
	return action, nil
}

func (a *Actions) target(modelType string) (ActionTarget, error) {
	t, ok := a.targets[modelType]
	if !ok {
		return nil, models.NewValidationError("unsupported model_type " + modelType)
	}
	return t, nil
}

func (a *Actions) notice(event notifications.Event, action *models.PendingAction, reason string) Notice {
	label := action.ModelType
	if t, ok := a.targets[action.ModelType]; ok {
		label = t.Label()
	}
	return Notice{
		Event:       event,
		Kind:        action.ModelType,
		Label:       label,
		RequestID:   action.ID,
		RequestType: action.ActionType,
		RecipientID: action.RequestedBy,
		Reason:      reason,
	}
}

func (w *Workflow[F, E, P, PE, PP]) stageAction(ctx context.Context, tx *gorm.DB, action *models.PendingAction) error {
	var snapshot F
	if action.ActionType != models.RequestDelete {
		if err := decodeFields(action.Data, &snapshot); err != nil {
			return err
		}
	}

	if action.ActionType == models.RequestCreate {
		w.derive(&snapshot)
		if err := w.checkDuplicate(ctx, tx, &snapshot, nil); err != nil {
			return err
		}
		return encodeFields(action, snapshot)
	}

	targetID := *action.ModelID
	entities := w.entities.WithTx(tx)
	if err := entities.AcquireLock(ctx, targetID); err != nil {
		return err
	}
	current, err := entities.Find(ctx, targetID)
	if err != nil {
		return err
	}

	if action.ActionType == models.RequestDelete {
		snapshot = *PE(current).Data()
		if w.kind.Identify != nil {
			snapshot = w.kind.Identify(snapshot)
		}
		return encodeFields(action, snapshot)
	}

	snapshot, err = merge(snapshot, *PE(current).Data())
	if err != nil {
		return err
	}
	w.derive(&snapshot)
	if err := w.checkDuplicate(ctx, tx, &snapshot, &targetID); err != nil {
		return err
	}
	return encodeFields(action, snapshot)
}

func (w *Workflow[F, E, P, PE, PP]) applyAction(ctx context.Context, tx *gorm.DB, action *models.PendingAction, actorID uint, now time.Time) (Outcome, error) {
	var snapshot F
	if err := decodeFields(action.Data, &snapshot); err != nil {
		return "", err
	}
	// Create actions keep a null model_id after approval.
	_, outcome, err := w.apply(ctx, tx, action.ActionType, action.ModelID, snapshot, action.RequestedBy, actorID, now)
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (w *Workflow[F, E, P, PE, PP]) releaseAction(ctx context.Context, tx *gorm.DB, action *models.PendingAction) error {
	if action.ActionType == models.RequestCreate || action.ModelID == nil {
		return nil
	}
	return w.entities.WithTx(tx).ReleaseLock(ctx, *action.ModelID)
}

// decodeFields rejects unknown keys so a payload cannot smuggle in columns
// the kind does not have.
func decodeFields[F any](data []byte, dest *F) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return models.NewValidationError("data is required")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return &models.AppError{Code: models.CodeValidation, Message: "invalid data payload", Err: err}
	}
	return nil
}

func encodeFields[F any](action *models.PendingAction, snapshot F) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return models.NewInternalError(err)
	}
	action.Data = datatypes.JSON(b)
	return nil
}
