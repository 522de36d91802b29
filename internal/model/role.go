package model

import (
	"time"

	"github.com/google/uuid"
)

// Role groups permission codes; the four built-in roles are flagged IsSystem
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PermissionCodes flattens the preloaded permissions into their codes
func (r Role) PermissionCodes() []string {
	codes := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		codes = append(codes, p.Code)
	}
	return codes
}

// Permission is a single capability, e.g. "tax_blocks.write"
type Permission struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	Group string    `gorm:"type:varchar(50);not null;index" json:"group"`
}

// Permission codes checked by the route middleware
const (
	PermUsersRead        = "users.read"
	PermUsersWrite       = "users.write"
	PermRolesRead        = "roles.read"
	PermRolesWrite       = "roles.write"
	PermClientsRead      = "clients.read"
	PermClientsWrite     = "clients.write"
	PermPartnersRead     = "partners.read"
	PermPartnersWrite    = "partners.write"
	PermCommissionsRead  = "commissions.read"
	PermCommissionsReq   = "commissions.request"
	PermTaxBlocksRead    = "tax_blocks.read"
	PermTaxBlocksWrite   = "tax_blocks.write"
	PermTaxBlocksAssign  = "tax_blocks.assign"
	PermMachinesRead     = "machines.read"
	PermMachinesWrite    = "machines.write"
	PermSalesRead        = "sales.read"
	PermSalesWrite       = "sales.write"
	PermSalesExport      = "sales.export"
	PermTicketsRead      = "tickets.read"
	PermTicketsWrite     = "tickets.write"
	PermTicketsManage    = "tickets.manage"
	PermApprovalsRead    = "approvals.read"
	PermApprovalsRequest = "approvals.request"
	PermApprovalsDecide  = "approvals.decide"
	PermStatisticsRead   = "statistics.read"
	PermAuditRead        = "audit.read"
)
