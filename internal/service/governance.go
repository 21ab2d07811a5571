// Package service sits between the HTTP layer and the approval engine. It
// decides who may skip review, enforces the two-person rule and enriches
// change requests with directory profiles for display.
package service

import (
	"context"

	"secmaster/internal/authz"
	"secmaster/internal/directory"
	"secmaster/internal/models"
	"secmaster/internal/repository"
	"secmaster/internal/validation"
	"secmaster/internal/workflow"
)

// Engine is the approval engine for one governed kind.
type Engine[F, E, P any] interface {
	Kind() string
	Label() string
	ProposeCreate(ctx context.Context, fields F, requesterID, authoriserID uint) (*P, error)
	ProposeUpdate(ctx context.Context, targetID uint, fields F, requesterID, authoriserID uint) (*P, error)
	ProposeDelete(ctx context.Context, targetID uint, requesterID, authoriserID uint) (*P, error)
	Approve(ctx context.Context, pendingID, actorID uint) (*workflow.Materialization[E, P], error)
	Reject(ctx context.Context, pendingID, actorID uint, reason string) (*P, error)
	GetPending(ctx context.Context, pendingID uint) (*P, error)
	ListPending(ctx context.Context, page, pageSize int) (*repository.Page[P], error)
	CreateDirect(ctx context.Context, fields F, actorID uint) (*E, error)
	UpdateDirect(ctx context.Context, id uint, fields F, actorID uint) (*E, error)
	DeleteDirect(ctx context.Context, id uint, actorID uint) error
	Get(ctx context.Context, id uint) (*E, error)
	List(ctx context.Context, page, pageSize int) (*repository.Page[E], error)
}

// Hooks customise a Governance for one kind. All are optional.
type Hooks[F any] struct {
	// Validate returns a plain error describing the first invalid field.
	Validate func(f *F, creating bool) error
	// Prepare rewrites the fields after validation, before they reach the
	// engine.
	Prepare func(f *F) error
	// Applied runs after a change reaches the authoritative table.
	Applied func(ctx context.Context)
}

// Submission is a change request with its actors resolved for display.
type Submission[P any] struct {
	Request    *P                 `json:"request"`
	Requester  *directory.Profile `json:"requester"`
	Authoriser *directory.Profile `json:"authoriser"`
}

// Mutation is the result of a create, update or delete. Applied is true when
// the actor bypassed review and the record changed immediately.
type Mutation[E, P any] struct {
	Applied    bool           `json:"applied"`
	Entity     *E             `json:"entity,omitempty"`
	Submission *Submission[P] `json:"submission,omitempty"`
}

// Governance routes mutations of one kind either straight to the store or
// through the approval engine.
type Governance[F, E, P any, PP workflow.PendingPtr[P, F]] struct {
	engine   Engine[F, E, P]
	bypass   authz.Predicate
	profiles workflow.ProfileResolver
	hooks    Hooks[F]
}

// NewGovernance wires a facade over engine. profiles may be nil.
func NewGovernance[F, E, P any, PP workflow.PendingPtr[P, F]](engine Engine[F, E, P], bypass authz.Predicate, profiles workflow.ProfileResolver, hooks Hooks[F]) *Governance[F, E, P, PP] {
	return &Governance[F, E, P, PP]{engine: engine, bypass: bypass, profiles: profiles, hooks: hooks}
}

func (g *Governance[F, E, P, PP]) Kind() string  { return g.engine.Kind() }
func (g *Governance[F, E, P, PP]) Label() string { return g.engine.Label() }

// Create adds a record, or proposes it to authoriserID when actorID cannot
// bypass review.
func (g *Governance[F, E, P, PP]) Create(ctx context.Context, actorID, authoriserID uint, fields F) (*Mutation[E, P], error) {
	if err := g.check(&fields, true); err != nil {
		return nil, err
	}
	direct, err := g.canBypass(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if direct {
		entity, err := g.engine.CreateDirect(ctx, fields, actorID)
		if err != nil {
			return nil, err
		}
		g.applied(ctx)
		return &Mutation[E, P]{Applied: true, Entity: entity}, nil
	}
	if err := fourEyes(actorID, authoriserID); err != nil {
		return nil, err
	}
	req, err := g.engine.ProposeCreate(ctx, fields, actorID, authoriserID)
	if err != nil {
		return nil, err
	}
	return &Mutation[E, P]{Submission: g.enrich(ctx, req)}, nil
}

// Update changes record id, or proposes the change.
func (g *Governance[F, E, P, PP]) Update(ctx context.Context, actorID, authoriserID, id uint, fields F) (*Mutation[E, P], error) {
	if err := g.check(&fields, false); err != nil {
		return nil, err
	}
	direct, err := g.canBypass(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if direct {
		entity, err := g.engine.UpdateDirect(ctx, id, fields, actorID)
		if err != nil {
			return nil, err
		}
		g.applied(ctx)
		return &Mutation[E, P]{Applied: true, Entity: entity}, nil
	}
	if err := fourEyes(actorID, authoriserID); err != nil {
		return nil, err
	}
	req, err := g.engine.ProposeUpdate(ctx, id, fields, actorID, authoriserID)
	if err != nil {
		return nil, err
	}
	return &Mutation[E, P]{Submission: g.enrich(ctx, req)}, nil
}

// Delete soft-deletes record id, or proposes the deletion.
func (g *Governance[F, E, P, PP]) Delete(ctx context.Context, actorID, authoriserID, id uint) (*Mutation[E, P], error) {
	direct, err := g.canBypass(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if direct {
		if err := g.engine.DeleteDirect(ctx, id, actorID); err != nil {
			return nil, err
		}
		g.applied(ctx)
		return &Mutation[E, P]{Applied: true}, nil
	}
	if err := fourEyes(actorID, authoriserID); err != nil {
		return nil, err
	}
	req, err := g.engine.ProposeDelete(ctx, id, actorID, authoriserID)
	if err != nil {
		return nil, err
	}
	return &Mutation[E, P]{Submission: g.enrich(ctx, req)}, nil
}

// Approve applies pending request pendingID on behalf of actorID.
func (g *Governance[F, E, P, PP]) Approve(ctx context.Context, actorID, pendingID uint) (*workflow.Materialization[E, P], error) {
	if err := g.mayReview(ctx, actorID, pendingID); err != nil {
		return nil, err
	}
	mat, err := g.engine.Approve(ctx, pendingID, actorID)
	if err != nil {
		return nil, err
	}
	if mat.Outcome == workflow.OutcomeApplied {
		g.applied(ctx)
	}
	return mat, nil
}

// Reject closes pending request pendingID with reason.
func (g *Governance[F, E, P, PP]) Reject(ctx context.Context, actorID, pendingID uint, reason string) (*P, error) {
	if err := validation.ValidateReason(reason); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := g.mayReview(ctx, actorID, pendingID); err != nil {
		return nil, err
	}
	return g.engine.Reject(ctx, pendingID, actorID, reason)
}

func (g *Governance[F, E, P, PP]) GetPending(ctx context.Context, pendingID uint) (*Submission[P], error) {
	req, err := g.engine.GetPending(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	return g.enrich(ctx, req), nil
}

// ListPending returns open requests newest first.
func (g *Governance[F, E, P, PP]) ListPending(ctx context.Context, page, pageSize int) (*repository.Page[Submission[P]], error) {
	requests, err := g.engine.ListPending(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := &repository.Page[Submission[P]]{
		Items:    make([]Submission[P], 0, len(requests.Items)),
		Page:     requests.Page,
		PageSize: requests.PageSize,
		Total:    requests.Total,
		LastPage: requests.LastPage,
	}
	for i := range requests.Items {
		out.Items = append(out.Items, *g.enrich(ctx, &requests.Items[i]))
	}
	return out, nil
}

func (g *Governance[F, E, P, PP]) Get(ctx context.Context, id uint) (*E, error) {
	return g.engine.Get(ctx, id)
}

func (g *Governance[F, E, P, PP]) List(ctx context.Context, page, pageSize int) (*repository.Page[E], error) {
	return g.engine.List(ctx, page, pageSize)
}

func (g *Governance[F, E, P, PP]) check(fields *F, creating bool) error {
	if g.hooks.Validate != nil {
		if err := g.hooks.Validate(fields, creating); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	if g.hooks.Prepare != nil {
		return g.hooks.Prepare(fields)
	}
	return nil
}

func (g *Governance[F, E, P, PP]) applied(ctx context.Context) {
	if g.hooks.Applied != nil {
		g.hooks.Applied(ctx)
	}
}

func (g *Governance[F, E, P, PP]) canBypass(ctx context.Context, actorID uint) (bool, error) {
	if actorID == 0 {
		return false, models.NewUnauthorizedError("an authenticated actor is required")
	}
	if g.bypass == nil {
		return false, nil
	}
	return g.bypass.CanBypassApproval(ctx, actorID)
}

// mayReview allows the selected authoriser or a bypass actor, never the
// requester.
func (g *Governance[F, E, P, PP]) mayReview(ctx context.Context, actorID, pendingID uint) error {
	if actorID == 0 {
		return models.NewUnauthorizedError("an authenticated actor is required")
	}
	req, err := g.engine.GetPending(ctx, pendingID)
	if err != nil {
		return err
	}
	meta := PP(req).Request()
	if meta.RequestedBy == actorID {
		return models.NewForbiddenError("the requester cannot review their own change")
	}
	if meta.SelectedAuthoriserID == actorID {
		return nil
	}
	ok, err := g.canBypass(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("only the selected authoriser can review this change")
	}
	return nil
}

func (g *Governance[F, E, P, PP]) enrich(ctx context.Context, req *P) *Submission[P] {
	s := &Submission[P]{Request: req}
	if g.profiles == nil || req == nil {
		return s
	}
	meta := PP(req).Request()
	if p, ok := g.profiles.GetByID(ctx, meta.RequestedBy); ok {
		s.Requester = &p
	}
	if p, ok := g.profiles.GetByID(ctx, meta.SelectedAuthoriserID); ok {
		s.Authoriser = &p
	}
	return s
}

func fourEyes(requesterID, authoriserID uint) error {
	if authoriserID == 0 {
		return models.NewValidationError("an authoriser must be selected")
	}
	if authoriserID == requesterID {
		return models.NewValidationError("the authoriser must be a different user")
	}
	return nil
}
