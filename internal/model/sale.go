package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is one card/pix transaction captured on a client's terminal
type Sale struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client        *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	MachineID     *uuid.UUID      `gorm:"type:uuid;index" json:"machine_id"`
	BlockID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"block_id"`
	PaymentMethod string          `gorm:"type:varchar(10);not null;index" json:"payment_method"`
	Installments  int             `gorm:"not null;default:1" json:"installments"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"gross_amount"`
	FeeRate       decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"fee_rate"`
	FeeAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"fee_amount"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_amount"`
	SoldAt        time.Time       `gorm:"not null;index" json:"sold_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ClientRefund is written when a CLIENT_REFUND approval is granted
type ClientRefund struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SaleID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	ClientID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	ApprovalRequestID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"approval_request_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Reason            string          `gorm:"type:text" json:"reason"`
	CreatedAt         time.Time       `json:"created_at"`
}
