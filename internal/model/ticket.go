package model

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus enum constants
const (
	TicketOpen       = "OPEN"
	TicketInProgress = "IN_PROGRESS"
	TicketResolved   = "RESOLVED"
	TicketClosed     = "CLOSED"
)

// TicketPriority enum constants
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Ticket is a support request opened by or for a client
type Ticket struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Subject     string          `gorm:"type:varchar(255);not null" json:"subject"`
	Description string          `gorm:"type:text" json:"description"`
	Priority    string          `gorm:"type:varchar(10);not null;default:'MEDIUM';index" json:"priority"`
	Status      string          `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`
	OpenedBy    *uuid.UUID      `gorm:"type:uuid" json:"opened_by"`
	AssignedTo  *uuid.UUID      `gorm:"type:uuid;index" json:"assigned_to"`
	Assignee    *User           `gorm:"foreignKey:AssignedTo" json:"assignee,omitempty"`
	Messages    []TicketMessage `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	ClosedAt    *time.Time      `json:"closed_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TicketMessage is one entry in a ticket's conversation
type TicketMessage struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TicketID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"ticket_id"`
	AuthorID  *uuid.UUID `gorm:"type:uuid" json:"author_id"`
	Author    *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}
