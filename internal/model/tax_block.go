package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod enum constants
const (
	PaymentMethodCredit = "CREDIT"
	PaymentMethodDebit  = "DEBIT"
	PaymentMethodPix    = "PIX"
)

// Installment bounds for credit rates; debit and pix always settle in one
const (
	MinInstallments       = 1
	MaxCreditInstallments = 21
)

// TransferStatus enum constants
const (
	TransferPending   = "PENDING"
	TransferApplied   = "APPLIED"
	TransferCancelled = "CANCELLED"
)

// TaxBlock is a named set of fee rates assignable to clients
type TaxBlock struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(120);uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Rates       []TaxRate `gorm:"foreignKey:BlockID;constraint:OnDelete:CASCADE" json:"rates,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaxRate holds the percentages charged for one payment method / installment count
type TaxRate struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BlockID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_block_method_installment" json:"block_id"`
	PaymentMethod  string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_block_method_installment" json:"payment_method"`
	Installment    int             `gorm:"not null;default:1;uniqueIndex:idx_block_method_installment" json:"installment"`
	RootRate       decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"root_rate"`
	ForwardingRate decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"forwarding_rate"`
	FinalRate      decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"final_rate"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ClientTaxBlock is the client's current fee block; client_id is unique
type ClientTaxBlock struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"client_id"`
	Client    *Client   `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"client,omitempty"`
	BlockID   uuid.UUID `gorm:"type:uuid;not null;index" json:"block_id"`
	Block     *TaxBlock `gorm:"foreignKey:BlockID;constraint:OnDelete:CASCADE" json:"block,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaxBlockTransfer moves a client between blocks once CutoffAt is reached
type TaxBlockTransfer struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *Client    `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"client,omitempty"`
	FromBlockID uuid.UUID  `gorm:"type:uuid;not null" json:"from_block_id"`
	ToBlockID   uuid.UUID  `gorm:"type:uuid;not null" json:"to_block_id"`
	CutoffAt    time.Time  `gorm:"not null;index" json:"cutoff_at"`
	Notes       string     `gorm:"type:text" json:"notes"`
	Status      string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	AppliedAt   *time.Time `json:"applied_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
