package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalRequestType enum constants
const (
	ApprovalReqTypeCommissionPayout = "COMMISSION_PAYOUT"
	ApprovalReqTypeClientRefund     = "CLIENT_REFUND"
)

// ApprovalStatus enum constants
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// ApprovalRequest is a payment waiting for a manager's decision.
// Money only moves (payout or refund rows) after approval.
type ApprovalRequest struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestType     string          `gorm:"type:varchar(30);not null;index" json:"request_type"`
	ReferenceID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"reference_id"` // partners.id or sales.id
	RequestData     string          `gorm:"type:jsonb;not null" json:"request_data"`      // snapshot of the payment being approved
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status          string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RequestedBy     *uuid.UUID      `gorm:"type:uuid;index" json:"requested_by"`
	Requester       *User           `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	ApprovedBy      *uuid.UUID      `gorm:"type:uuid" json:"approved_by"`
	Approver        *User           `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
