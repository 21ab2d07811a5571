// Package models contains the persistent shapes of the master-data catalogue
// and of the change requests that govern it.
package models

import (
	"time"

	"gorm.io/gorm"
)

// EntityStatus is the lock flag carried by every governed record.
type EntityStatus string

const (
	// EntityStatusActive means the record can accept a new change request.
	EntityStatusActive EntityStatus = "active"
	// EntityStatusPendingApproval means an update or delete is in flight.
	EntityStatusPendingApproval EntityStatus = "pending_approval"
)

// PendingStatus defines lifecycle states for change requests.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
)

// RequestType names the mutation a change request would apply.
type RequestType string

const (
	RequestCreate RequestType = "create"
	RequestUpdate RequestType = "update"
	RequestDelete RequestType = "delete"
)

// Valid reports whether t is one of the three supported mutations.
func (t RequestType) Valid() bool {
	switch t {
	case RequestCreate, RequestUpdate, RequestDelete:
		return true
	}
	return false
}

// EntityMeta is embedded by every authoritative record.
type EntityMeta struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ApprovalStatus EntityStatus   `gorm:"type:varchar(20);not null;default:'active';index" json:"approval_status"`
	CreatedBy      *uint          `json:"created_by"`
	UpdatedBy      *uint          `json:"updated_by"`
	ApprovedBy     *uint          `json:"approved_by"`
	ApprovedAt     *time.Time     `json:"approved_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Meta exposes the embedded metadata to generic callers.
func (m *EntityMeta) Meta() *EntityMeta { return m }

// PendingMeta is embedded by every change request.
type PendingMeta struct {
	ID                   uint          `gorm:"primaryKey" json:"id"`
	TargetID             *uint         `gorm:"index" json:"target_id"`
	RequestType          RequestType   `gorm:"type:varchar(10);not null" json:"request_type"`
	RequestedBy          uint          `gorm:"not null;index" json:"requested_by"`
	SelectedAuthoriserID uint          `gorm:"not null;index" json:"selected_authoriser_id"`
	ApprovalStatus       PendingStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"approval_status"`
	RejectionReason      *string       `gorm:"type:text" json:"rejection_reason"`
	ReviewedBy           *uint         `json:"reviewed_by"`
	ReviewedAt           *time.Time    `json:"reviewed_at"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Request exposes the embedded workflow metadata to generic callers.
func (m *PendingMeta) Request() *PendingMeta { return m }

// IsPending reports whether the request can still be approved or rejected.
func (m *PendingMeta) IsPending() bool {
	return m.ApprovalStatus == PendingStatusPending
}

// Ptr returns a pointer to v, for optional fields.
func Ptr[T any](v T) *T {
	return &v
}
