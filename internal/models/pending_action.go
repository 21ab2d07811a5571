package models

import (
	"time"

	"gorm.io/datatypes"
)

// Model type tags accepted by the generic pending-action pipeline.
const (
	ModelTypeSecurity      = "security"
	ModelTypeAuctionResult = "auction_result"
)

// PendingAction is a change request whose payload is stored as JSON. Only the
// owning workflow decodes Data, always into its typed field struct.
type PendingAction struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	ActionType      RequestType    `gorm:"type:varchar(10);not null" json:"action_type"`
	ModelType       string         `gorm:"size:50;not null;index" json:"model_type"`
	ModelID         *uint          `gorm:"index" json:"model_id"`
	Data            datatypes.JSON `json:"data"`
	Status          PendingStatus  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RequestedBy     uint           `gorm:"not null;index" json:"requested_by"`
	ReviewedBy      *uint          `json:"reviewed_by"`
	ReviewedAt      *time.Time     `json:"reviewed_at"`
	RejectionReason *string        `gorm:"type:text" json:"rejection_reason"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (PendingAction) TableName() string { return "pending_actions" }
