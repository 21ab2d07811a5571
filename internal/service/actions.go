package service

import (
	"context"

	"secmaster/internal/models"
	"secmaster/internal/repository"
	"secmaster/internal/validation"
	"secmaster/internal/workflow"
)

// RoleChecker reports whether a user holds any of the given roles.
type RoleChecker interface {
	HasAnyRole(ctx context.Context, actorID uint, roles ...string) (bool, error)
}

// ActionService guards the pending-action pipeline. Actions carry no selected
// authoriser, so any authoriser or super admin other than the requester may
// review them.
type ActionService struct {
	actions *workflow.Actions
	roles   RoleChecker
}

func NewActionService(actions *workflow.Actions, roles RoleChecker) *ActionService {
	return &ActionService{actions: actions, roles: roles}
}

// ProposeInput is a JSON change request.
type ProposeInput struct {
	ModelType  string
	ActionType models.RequestType
	ModelID    *uint
	Data       []byte
}

func (s *ActionService) Propose(ctx context.Context, actorID uint, in ProposeInput) (*models.PendingAction, error) {
	if actorID == 0 {
		return nil, models.NewUnauthorizedError("an authenticated actor is required")
	}
	return s.actions.Propose(ctx, in.ModelType, in.ActionType, in.ModelID, in.Data, actorID)
}

func (s *ActionService) Approve(ctx context.Context, actorID, id uint) (*models.PendingAction, workflow.Outcome, error) {
	if err := s.mayReview(ctx, actorID, id); err != nil {
		return nil, "", err
	}
	return s.actions.Approve(ctx, id, actorID)
}

func (s *ActionService) Reject(ctx context.Context, actorID, id uint, reason string) (*models.PendingAction, error) {
	if err := validation.ValidateReason(reason); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.mayReview(ctx, actorID, id); err != nil {
		return nil, err
	}
	return s.actions.Reject(ctx, id, actorID, reason)
}

func (s *ActionService) Get(ctx context.Context, id uint) (*models.PendingAction, error) {
	return s.actions.Get(ctx, id)
}

func (s *ActionService) List(ctx context.Context, status models.PendingStatus, page, pageSize int) (*repository.Page[models.PendingAction], error) {
	return s.actions.List(ctx, status, page, pageSize)
}

func (s *ActionService) mayReview(ctx context.Context, actorID, id uint) error {
	if actorID == 0 {
		return models.NewUnauthorizedError("an authenticated actor is required")
	}
	action, err := s.actions.Get(ctx, id)
	if err != nil {
		return err
	}
	if action.RequestedBy == actorID {
		return models.NewForbiddenError("the requester cannot review their own change")
	}
	ok, err := s.roles.HasAnyRole(ctx, actorID, models.RoleAuthoriser, models.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("an authoriser role is required to review changes")
	}
	return nil
}
