package workflow

import (
	"context"

	"secmaster/internal/models"
	"secmaster/internal/observability"

	"gorm.io/gorm"
)

// CreateDirect creates a record without review. Callers must have checked
// that actorID may bypass approval.
func (w *Workflow[F, E, P, PE, PP]) CreateDirect(ctx context.Context, fields F, actorID uint) (*E, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "create_direct")
	defer span.End()

	if actorID == 0 {
		return nil, w.fail(ctx, span, "create_direct", models.NewValidationError("actor is required"))
	}

	snapshot := fields
	w.derive(&snapshot)

	entity := new(E)
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.checkDuplicate(ctx, tx, &snapshot, nil); err != nil {
			return err
		}
		*PE(entity).Data() = snapshot
		now := w.now()
		em := PE(entity).Meta()
		em.ApprovalStatus = models.EntityStatusActive
		em.CreatedBy = models.Ptr(actorID)
		em.ApprovedBy = models.Ptr(actorID)
		em.ApprovedAt = models.Ptr(now)
		return w.entities.WithTx(tx).Create(ctx, entity)
	})
	if err != nil {
		return nil, w.fail(ctx, span, "create_direct", err)
	}

	w.log.LogDirect(ctx, "create", PE(entity).Meta().ID, actorID)
	observability.WorkflowTransitions.WithLabelValues(w.kind.Name, "direct_create").Inc()
	return entity, nil
}

// UpdateDirect merges fields onto the record without review. A record with a
// change awaiting approval is refused so the open request is never orphaned.
func (w *Workflow[F, E, P, PE, PP]) UpdateDirect(ctx context.Context, id uint, fields F, actorID uint) (*E, error) {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "update_direct")
	defer span.End()

	if actorID == 0 {
		return nil, w.fail(ctx, span, "update_direct", models.NewValidationError("actor is required"))
	}

	var entity *E
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entity, err = w.lockedForDirect(ctx, tx, id)
		if err != nil {
			return err
		}
		snapshot, err := merge(fields, *PE(entity).Data())
		if err != nil {
			return err
		}
		w.derive(&snapshot)
		if err := w.checkDuplicate(ctx, tx, &snapshot, &id); err != nil {
			return err
		}
		*PE(entity).Data() = snapshot
		w.stampDirect(entity, actorID)
		return w.entities.WithTx(tx).Save(ctx, entity)
	})
	if err != nil {
		return nil, w.fail(ctx, span, "update_direct", err)
	}

	w.log.LogDirect(ctx, "update", id, actorID)
	observability.WorkflowTransitions.WithLabelValues(w.kind.Name, "direct_update").Inc()
	return entity, nil
}

// DeleteDirect soft-deletes the record without review.
func (w *Workflow[F, E, P, PE, PP]) DeleteDirect(ctx context.Context, id uint, actorID uint) error {
	span, ctx := observability.StartWorkflowSpan(ctx, w.kind.Name, "delete_direct")
	defer span.End()

	if actorID == 0 {
		return w.fail(ctx, span, "delete_direct", models.NewValidationError("actor is required"))
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := w.lockedForDirect(ctx, tx, id)
		if err != nil {
			return err
		}
		w.stampDirect(entity, actorID)
		entities := w.entities.WithTx(tx)
		if err := entities.Save(ctx, entity); err != nil {
			return err
		}
		return entities.Delete(ctx, entity)
	})
	if err != nil {
		return w.fail(ctx, span, "delete_direct", err)
	}

	w.log.LogDirect(ctx, "delete", id, actorID)
	observability.WorkflowTransitions.WithLabelValues(w.kind.Name, "direct_delete").Inc()
	return nil
}

func (w *Workflow[F, E, P, PE, PP]) lockedForDirect(ctx context.Context, tx *gorm.DB, id uint) (*E, error) {
	entity, err := w.entities.WithTx(tx).FindForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if PE(entity).Meta().ApprovalStatus == models.EntityStatusPendingApproval {
		return nil, models.NewPendingApprovalError(w.kind.Label, id)
	}
	return entity, nil
}

func (w *Workflow[F, E, P, PE, PP]) stampDirect(entity *E, actorID uint) {
	em := PE(entity).Meta()
	em.UpdatedBy = models.Ptr(actorID)
	em.ApprovedBy = models.Ptr(actorID)
	em.ApprovedAt = models.Ptr(w.now())
}
