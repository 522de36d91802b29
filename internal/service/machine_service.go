package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// machineTransitions lists the statuses each status may move to
var machineTransitions = map[string][]string{
	model.MachineInStock:     {model.MachineInTransit, model.MachineMaintenance, model.MachineDecommissioned},
	model.MachineInTransit:   {model.MachineInstalled, model.MachineInStock},
	model.MachineInstalled:   {model.MachineMaintenance, model.MachineInStock},
	model.MachineMaintenance: {model.MachineInStock, model.MachineDecommissioned},
}

// CanMoveMachine reports whether a machine may go from one status to another
func CanMoveMachine(from, to string) bool {
	for _, next := range machineTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validMachineStatus(status string) bool {
	switch status {
	case model.MachineInStock, model.MachineInTransit, model.MachineInstalled, model.MachineMaintenance, model.MachineDecommissioned:
		return true
	}
	return false
}

// --- DTOs ---

type CreateMachineRequest struct {
	SerialNumber string `json:"serial_number" binding:"required"`
	Model        string `json:"model" binding:"required"`
	Location     string `json:"location"`
}

type UpdateMachineRequest struct {
	Model    string `json:"model" binding:"required"`
	Location string `json:"location"`
}

type MoveMachineRequest struct {
	ToStatus string `json:"to_status" binding:"required"`
	ClientID string `json:"client_id"`
	Location string `json:"location"`
	Note     string `json:"note"`
}

type MachineFilter struct {
	Status   string
	ClientID string
	Search   string
	Page     int
	Limit    int
}

type MachineResponse struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serial_number"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	ClientID     string `json:"client_id,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	Location     string `json:"location"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type MachineMovementResponse struct {
	ID         string `json:"id"`
	MachineID  string `json:"machine_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ClientID   string `json:"client_id,omitempty"`
	Note       string `json:"note"`
	CreatedBy  string `json:"created_by,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// --- Interface ---

type MachineService interface {
	ListMachines(ctx context.Context, filter MachineFilter) ([]MachineResponse, int64, error)
	GetMachine(ctx context.Context, id string) (*MachineResponse, error)
	CreateMachine(ctx context.Context, req CreateMachineRequest, userID string) (*MachineResponse, error)
	UpdateMachine(ctx context.Context, id string, req UpdateMachineRequest, userID string) (*MachineResponse, error)
	DeleteMachine(ctx context.Context, id string, userID string) error
	MoveMachine(ctx context.Context, id string, req MoveMachineRequest, userID string) (*MachineResponse, error)
	ListMovements(ctx context.Context, id string) ([]MachineMovementResponse, error)
	StockSummary(ctx context.Context) ([]model.MachineStatusCount, error)
}

type machineService struct {
	tx       repository.TransactionManager
	machines repository.MachineRepository
	clients  repository.ClientRepository
	audit    AuditService
	metrics  *metrics.Metrics
	events   EventPublisher
}

func NewMachineService(tx repository.TransactionManager, machines repository.MachineRepository, clients repository.ClientRepository, audit AuditService, m *metrics.Metrics, events EventPublisher) MachineService {
	return &machineService{tx: tx, machines: machines, clients: clients, audit: audit, metrics: m, events: publisherOrNoop(events)}
}

// --- Implementation ---

func (s *machineService) ListMachines(ctx context.Context, filter MachineFilter) ([]MachineResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	if status != "" && !validMachineStatus(status) {
		return nil, 0, invalid("invalid machine status %q", filter.Status)
	}
	clientID, err := parseOptionalID(filter.ClientID, "client")
	if err != nil {
		return nil, 0, err
	}

	machines, total, err := s.machines.List(ctx, repository.MachineFilter{
		Status:   status,
		ClientID: clientID,
		Search:   strings.TrimSpace(filter.Search),
	}, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch machines: %w", err)
	}

	res := make([]MachineResponse, 0, len(machines))
	for _, m := range machines {
		res = append(res, toMachineResponse(m))
	}
	return res, total, nil
}

func (s *machineService) GetMachine(ctx context.Context, id string) (*MachineResponse, error) {
	machineID, err := parseID(id, "machine")
	if err != nil {
		return nil, err
	}
	machine, err := s.machines.FindByID(ctx, machineID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("machine not found")
		}
		return nil, fmt.Errorf("failed to fetch machine: %w", err)
	}
	resp := toMachineResponse(*machine)
	return &resp, nil
}

func (s *machineService) CreateMachine(ctx context.Context, req CreateMachineRequest, userID string) (*MachineResponse, error) {
	serial := strings.ToUpper(strings.TrimSpace(req.SerialNumber))
	if serial == "" {
		return nil, invalid("serial number is required")
	}

	machine := model.Machine{
		SerialNumber: serial,
		Model:        strings.TrimSpace(req.Model),
		Status:       model.MachineInStock,
		Location:     req.Location,
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.machines.FindBySerial(txCtx, serial); err == nil {
			return conflict("a machine with serial number %s already exists", serial)
		}
		if err := s.machines.Create(txCtx, &machine); err != nil {
			if isDuplicateKey(err) {
				return conflict("a machine with serial number %s already exists", serial)
			}
			return fmt.Errorf("failed to create machine: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionCreateMachine, machine.ID.String(), machine.SerialNumber, req)
	})
	if err != nil {
		return nil, err
	}

	resp := toMachineResponse(machine)
	return &resp, nil
}

func (s *machineService) UpdateMachine(ctx context.Context, id string, req UpdateMachineRequest, userID string) (*MachineResponse, error) {
	machineID, err := parseID(id, "machine")
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		machine, err := s.machines.LockByID(txCtx, machineID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("machine not found")
			}
			return fmt.Errorf("failed to fetch machine: %w", err)
		}

		machine.Model = strings.TrimSpace(req.Model)
		machine.Location = req.Location
		if err := s.machines.Update(txCtx, machine); err != nil {
			return fmt.Errorf("failed to update machine: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionUpdateMachine, machine.ID.String(), machine.SerialNumber, req)
	})
	if err != nil {
		return nil, err
	}

	return s.GetMachine(ctx, id)
}

// DeleteMachine refuses machines that are out in the field
func (s *machineService) DeleteMachine(ctx context.Context, id string, userID string) error {
	machineID, err := parseID(id, "machine")
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		machine, err := s.machines.LockByID(txCtx, machineID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("machine not found")
			}
			return fmt.Errorf("failed to fetch machine: %w", err)
		}
		if machine.Status != model.MachineInStock && machine.Status != model.MachineDecommissioned {
			return conflict("machine is %s; only machines in stock or decommissioned can be deleted", machine.Status)
		}

		if err := s.machines.Delete(txCtx, machineID); err != nil {
			return fmt.Errorf("failed to delete machine: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionDeleteMachine, machine.ID.String(), machine.SerialNumber,
			map[string]string{"deleted_id": id})
	})
}

// MoveMachine changes a machine's status following the logistics flow and records the movement
func (s *machineService) MoveMachine(ctx context.Context, id string, req MoveMachineRequest, userID string) (*MachineResponse, error) {
	machineID, err := parseID(id, "machine")
	if err != nil {
		return nil, err
	}
	toStatus := strings.ToUpper(strings.TrimSpace(req.ToStatus))
	if !validMachineStatus(toStatus) {
		return nil, invalid("invalid machine status %q", req.ToStatus)
	}
	clientID, err := parseOptionalID(req.ClientID, "client")
	if err != nil {
		return nil, err
	}

	var movement model.MachineMovement
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		machine, err := s.machines.LockByID(txCtx, machineID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("machine not found")
			}
			return fmt.Errorf("failed to fetch machine: %w", err)
		}

		if !CanMoveMachine(machine.Status, toStatus) {
			return conflict("machine cannot move from %s to %s", machine.Status, toStatus)
		}

		switch toStatus {
		case model.MachineInTransit, model.MachineInstalled:
			if clientID == nil {
				clientID = machine.ClientID
			}
			if clientID == nil {
				return invalid("a client is required to move a machine to %s", toStatus)
			}
			if _, err := s.clients.FindByID(txCtx, *clientID); err != nil {
				if isRecordNotFound(err) {
					return notFound("client not found")
				}
				return fmt.Errorf("failed to fetch client: %w", err)
			}
			machine.ClientID = clientID
		case model.MachineInStock, model.MachineDecommissioned:
			machine.ClientID = nil
		}

		fromStatus := machine.Status
		machine.Status = toStatus
		machine.Client = nil
		if req.Location != "" {
			machine.Location = req.Location
		}
		if err := s.machines.Update(txCtx, machine); err != nil {
			return fmt.Errorf("failed to update machine: %w", err)
		}

		movement = model.MachineMovement{
			MachineID:  machine.ID,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			ClientID:   machine.ClientID,
			Note:       req.Note,
			CreatedBy:  actorID(userID),
		}
		if err := s.machines.CreateMovement(txCtx, &movement); err != nil {
			return fmt.Errorf("failed to record machine movement: %w", err)
		}

		return s.audit.Record(txCtx, userID, model.ActionMoveMachine, machine.ID.String(), machine.SerialNumber, map[string]string{
			"from_status": fromStatus,
			"to_status":   toStatus,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementMachineMove(toStatus)
	s.events.Publish(EventMachineMoved, toMovementResponse(movement))

	return s.GetMachine(ctx, id)
}

func (s *machineService) ListMovements(ctx context.Context, id string) ([]MachineMovementResponse, error) {
	machineID, err := parseID(id, "machine")
	if err != nil {
		return nil, err
	}
	if _, err := s.machines.FindByID(ctx, machineID); err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("machine not found")
		}
		return nil, fmt.Errorf("failed to fetch machine: %w", err)
	}

	movements, err := s.machines.ListMovements(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch machine movements: %w", err)
	}

	res := make([]MachineMovementResponse, 0, len(movements))
	for _, m := range movements {
		res = append(res, toMovementResponse(m))
	}
	return res, nil
}

func (s *machineService) StockSummary(ctx context.Context) ([]model.MachineStatusCount, error) {
	counts, err := s.machines.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count machines: %w", err)
	}
	return counts, nil
}

// --- Helpers ---

func toMachineResponse(m model.Machine) MachineResponse {
	resp := MachineResponse{
		ID:           m.ID.String(),
		SerialNumber: m.SerialNumber,
		Model:        m.Model,
		Status:       m.Status,
		Location:     m.Location,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    m.UpdatedAt.Format(time.RFC3339),
	}
	if m.ClientID != nil {
		resp.ClientID = m.ClientID.String()
	}
	if m.Client != nil {
		resp.ClientName = m.Client.Name
	}
	return resp
}

func toMovementResponse(m model.MachineMovement) MachineMovementResponse {
	resp := MachineMovementResponse{
		ID:         m.ID.String(),
		MachineID:  m.MachineID.String(),
		FromStatus: m.FromStatus,
		ToStatus:   m.ToStatus,
		Note:       m.Note,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
	if m.ClientID != nil {
		resp.ClientID = m.ClientID.String()
	}
	if m.CreatedBy != nil {
		resp.CreatedBy = m.CreatedBy.String()
	}
	return resp
}
