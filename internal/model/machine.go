package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MachineStatus enum constants
const (
	MachineInStock        = "IN_STOCK"
	MachineInTransit      = "IN_TRANSIT"
	MachineInstalled      = "INSTALLED"
	MachineMaintenance    = "MAINTENANCE"
	MachineDecommissioned = "DECOMMISSIONED"
)

// Machine is a payment terminal tracked from stock to the client's counter
type Machine struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SerialNumber string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"serial_number"`
	Model        string         `gorm:"type:varchar(100);not null" json:"model"`
	Status       string         `gorm:"type:varchar(20);not null;default:'IN_STOCK';index" json:"status"`
	ClientID     *uuid.UUID     `gorm:"type:uuid;index" json:"client_id"`
	Client       *Client        `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Location     string         `gorm:"type:varchar(255)" json:"location"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// MachineMovement records each status change of a machine
type MachineMovement struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MachineID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"machine_id"`
	FromStatus string     `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus   string     `gorm:"type:varchar(20);not null" json:"to_status"`
	ClientID   *uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Note       string     `gorm:"type:text" json:"note"`
	CreatedBy  *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

// MachineStatusCount is one row of the stock summary
type MachineStatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
