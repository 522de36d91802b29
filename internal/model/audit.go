package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateClient = "CREATE_CLIENT"
	ActionUpdateClient = "UPDATE_CLIENT"
	ActionDeleteClient = "DELETE_CLIENT"

	ActionCreatePartner = "CREATE_PARTNER"
	ActionUpdatePartner = "UPDATE_PARTNER"
	ActionDeletePartner = "DELETE_PARTNER"

	ActionCreateTaxBlock = "CREATE_TAX_BLOCK"
	ActionUpdateTaxBlock = "UPDATE_TAX_BLOCK"
	ActionDeleteTaxBlock = "DELETE_TAX_BLOCK"
	ActionUpsertTaxRates = "UPSERT_TAX_RATES"
	ActionDeleteTaxRate  = "DELETE_TAX_RATE"

	ActionAssignTaxBlock   = "ASSIGN_TAX_BLOCK"
	ActionRemoveTaxBlock   = "REMOVE_TAX_BLOCK"
	ActionScheduleTransfer = "SCHEDULE_TAX_BLOCK_TRANSFER"
	ActionApplyTransfer    = "APPLY_TAX_BLOCK_TRANSFER"
	ActionCancelTransfer   = "CANCEL_TAX_BLOCK_TRANSFER"

	ActionCreateMachine = "CREATE_MACHINE"
	ActionUpdateMachine = "UPDATE_MACHINE"
	ActionDeleteMachine = "DELETE_MACHINE"
	ActionMoveMachine   = "MOVE_MACHINE"

	ActionRecordSale = "RECORD_SALE"

	ActionCreateTicket       = "CREATE_TICKET"
	ActionChangeTicketStatus = "CHANGE_TICKET_STATUS"
	ActionAssignTicket       = "ASSIGN_TICKET"

	// Approval workflow actions
	ActionCreateApprovalRequest = "CREATE_APPROVAL_REQUEST"
	ActionApproveRequest        = "APPROVE_REQUEST"
	ActionRejectRequest         = "REJECT_REQUEST"
	ActionPayCommission         = "PAY_COMMISSION"
	ActionRefundClient          = "REFUND_CLIENT"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for the transfer worker
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
