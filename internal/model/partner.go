package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Partner refers clients and earns a share of the fees they generate
type Partner struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	Document       string          `gorm:"type:varchar(20);index" json:"document"`
	Email          string          `gorm:"type:varchar(255)" json:"email"`
	Phone          string          `gorm:"type:varchar(50)" json:"phone"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"commission_rate"` // percentage, e.g. 30.0000
	IsActive       bool            `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// CommissionPayout is written when a COMMISSION_PAYOUT approval is granted
type CommissionPayout struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PartnerID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"partner_id"`
	ApprovalRequestID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"approval_request_id"`
	PeriodStart       time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time       `gorm:"not null" json:"period_end"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	PaidAt            time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt         time.Time       `json:"created_at"`
}
