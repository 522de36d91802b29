// Package app wires repositories into services. The API server and backofficectl share it.
package app

import (
	"time"

	"backoffice/internal/auth"
	"backoffice/internal/cache"
	"backoffice/internal/metrics"
	"backoffice/internal/repository"
	"backoffice/internal/service"

	"gorm.io/gorm"
)

// Dependencies are the infrastructure pieces every service graph needs
type Dependencies struct {
	DB              *gorm.DB
	PermissionCache cache.PermissionCache
	Metrics         *metrics.Metrics
	Events          service.EventPublisher
	Tokens          *auth.TokenManager
	RefreshTokenTTL time.Duration
}

type Services struct {
	Audit       service.AuditService
	Roles       service.RoleService
	Users       service.UserService
	Clients     service.ClientService
	Partners    service.PartnerService
	TaxBlocks   service.TaxBlockService
	Assignments service.TaxBlockAssignmentService
	Machines    service.MachineService
	Sales       service.SaleService
	Tickets     service.TicketService
	Approvals   service.ApprovalService
	Statistics  service.StatisticsService
}

// NewServices builds the repository -> service graph
func NewServices(d Dependencies) *Services {
	tx := repository.NewTransactionManager(d.DB)

	userRepo := repository.NewUserRepository(d.DB)
	roleRepo := repository.NewRoleRepository(d.DB)
	auditRepo := repository.NewAuditRepository(d.DB)
	partnerRepo := repository.NewPartnerRepository(d.DB)
	clientRepo := repository.NewClientRepository(d.DB)
	blockRepo := repository.NewTaxBlockRepository(d.DB)
	assocRepo := repository.NewClientTaxBlockRepository(d.DB)
	machineRepo := repository.NewMachineRepository(d.DB)
	saleRepo := repository.NewSaleRepository(d.DB)
	ticketRepo := repository.NewTicketRepository(d.DB)
	approvalRepo := repository.NewApprovalRepository(d.DB)
	statsRepo := repository.NewStatisticsRepository(d.DB)

	audit := service.NewAuditService(auditRepo)
	roles := service.NewRoleService(tx, roleRepo, d.PermissionCache)
	taxBlocks := service.NewTaxBlockService(tx, blockRepo, audit)
	assignments := service.NewTaxBlockAssignmentService(tx, clientRepo, blockRepo, assocRepo, audit, d.Metrics, d.Events)

	return &Services{
		Audit:       audit,
		Roles:       roles,
		Users:       service.NewUserService(tx, userRepo, partnerRepo, clientRepo, roles, d.Tokens, d.RefreshTokenTTL),
		Clients:     service.NewClientService(tx, clientRepo, partnerRepo, audit),
		Partners:    service.NewPartnerService(tx, partnerRepo, approvalRepo, audit),
		TaxBlocks:   taxBlocks,
		Assignments: assignments,
		Machines:    service.NewMachineService(tx, machineRepo, clientRepo, audit, d.Metrics, d.Events),
		Sales:       service.NewSaleService(tx, saleRepo, clientRepo, machineRepo, assignments, taxBlocks, audit, d.Metrics, d.Events),
		Tickets:     service.NewTicketService(tx, ticketRepo, clientRepo, userRepo, audit, d.Events),
		Approvals:   service.NewApprovalService(tx, approvalRepo, saleRepo, partnerRepo, audit, d.Events),
		Statistics:  service.NewStatisticsService(statsRepo, machineRepo),
	}
}
