// Package authz answers whether an actor may skip the approval workflow.
package authz

import (
	"context"

	"secmaster/internal/models"

	"gorm.io/gorm"
)

// Predicate decides whether actorID may mutate governed records directly.
type Predicate interface {
	CanBypassApproval(ctx context.Context, actorID uint) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, actorID uint) (bool, error)

// CanBypassApproval implements Predicate.
func (f PredicateFunc) CanBypassApproval(ctx context.Context, actorID uint) (bool, error) {
	return f(ctx, actorID)
}

// RolePredicate grants bypass to live users holding one role.
type RolePredicate struct {
	db   *gorm.DB
	role string
}

// NewRolePredicate returns a predicate for role, super_admin when empty.
func NewRolePredicate(db *gorm.DB, role string) *RolePredicate {
	if role == "" {
		role = models.RoleSuperAdmin
	}
	return &RolePredicate{db: db, role: role}
}

// Role is the bypass role.
func (p *RolePredicate) Role() string { return p.role }

// CanBypassApproval implements Predicate.
func (p *RolePredicate) CanBypassApproval(ctx context.Context, actorID uint) (bool, error) {
	return p.HasAnyRole(ctx, actorID, p.role)
}

// HasAnyRole reports whether actorID is a live user holding one of roles.
func (p *RolePredicate) HasAnyRole(ctx context.Context, actorID uint, roles ...string) (bool, error) {
	if actorID == 0 || len(roles) == 0 {
		return false, nil
	}
	var count int64
	err := p.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role IN ?", actorID, roles).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}
