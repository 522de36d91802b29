package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

// Assignment outcomes
const (
	OutcomeAssigned          = "assigned"
	OutcomeUnchanged         = "unchanged"
	OutcomeTransferScheduled = "transfer_scheduled"
	OutcomeTransferred       = "transferred"
)

// dueTransferBatch caps how many transfers one ApplyDueTransfers pass handles
const dueTransferBatch = 200

// --- DTOs ---

type AssignTaxBlockRequest struct {
	BlockID  string     `json:"block_id" binding:"required"`
	CutoffAt *time.Time `json:"cutoff_at"` // required when the client already has another block
	Notes    string     `json:"notes"`
}

type TransferTaxBlockRequest struct {
	ToBlockID string    `json:"to_block_id" binding:"required"`
	CutoffAt  time.Time `json:"cutoff_at" binding:"required"`
	Notes     string    `json:"notes"`
}

type TransferFilter struct {
	ClientID string
	Status   string
	Page     int
	Limit    int
}

type TransferResponse struct {
	ID          string  `json:"id"`
	ClientID    string  `json:"client_id"`
	ClientName  string  `json:"client_name,omitempty"`
	FromBlockID string  `json:"from_block_id"`
	ToBlockID   string  `json:"to_block_id"`
	CutoffAt    string  `json:"cutoff_at"`
	Notes       string  `json:"notes"`
	Status      string  `json:"status"`
	CreatedBy   *string `json:"created_by"`
	AppliedAt   *string `json:"applied_at"`
	CreatedAt   string  `json:"created_at"`
}

type ClientBlockResponse struct {
	ClientID        string            `json:"client_id"`
	BlockID         *string           `json:"block_id"`
	BlockName       string            `json:"block_name,omitempty"`
	AssignedAt      *string           `json:"assigned_at"`
	PendingTransfer *TransferResponse `json:"pending_transfer"`
}

type AssignmentResult struct {
	Outcome  string               `json:"outcome"`
	Current  *ClientBlockResponse `json:"current"`
	Transfer *TransferResponse    `json:"transfer,omitempty"`
}

// --- Interface ---

type TaxBlockAssignmentService interface {
	GetClientBlock(ctx context.Context, clientID string) (*ClientBlockResponse, error)
	// AssignTaxBlock assigns a block to a client. When the client already has a different
	// block the request must carry a cutoff, otherwise a *TransferRequiredError is returned.
	AssignTaxBlock(ctx context.Context, clientID string, req AssignTaxBlockRequest, userID string) (*AssignmentResult, error)
	TransferTaxBlock(ctx context.Context, clientID string, req TransferTaxBlockRequest, userID string) (*AssignmentResult, error)
	ListTransfers(ctx context.Context, filter TransferFilter) ([]TransferResponse, int64, error)
	CancelTransfer(ctx context.Context, id string, userID string) (*TransferResponse, error)
	ApplyDueTransfers(ctx context.Context, now time.Time) (int, error)
	RemoveAssociation(ctx context.Context, clientID string, userID string) error
	// EffectiveBlock resolves the block governing the client's sales at a point in time
	EffectiveBlock(ctx context.Context, clientID uuid.UUID, at time.Time) (uuid.UUID, error)
}

type taxBlockAssignmentService struct {
	tx      repository.TransactionManager
	clients repository.ClientRepository
	blocks  repository.TaxBlockRepository
	assocs  repository.ClientTaxBlockRepository
	audit   AuditService
	metrics *metrics.Metrics
	events  EventPublisher
	now     func() time.Time
}

func NewTaxBlockAssignmentService(
	tx repository.TransactionManager,
	clients repository.ClientRepository,
	blocks repository.TaxBlockRepository,
	assocs repository.ClientTaxBlockRepository,
	audit AuditService,
	m *metrics.Metrics,
	events EventPublisher,
) TaxBlockAssignmentService {
	return &taxBlockAssignmentService{
		tx:      tx,
		clients: clients,
		blocks:  blocks,
		assocs:  assocs,
		audit:   audit,
		metrics: m,
		events:  publisherOrNoop(events),
		now:     time.Now,
	}
}

// --- Implementation ---

func (s *taxBlockAssignmentService) GetClientBlock(ctx context.Context, clientID string) (*ClientBlockResponse, error) {
	cID, err := parseID(clientID, "client")
	if err != nil {
		return nil, err
	}
	if err := s.ensureClient(ctx, cID); err != nil {
		return nil, err
	}
	return s.currentState(ctx, cID)
}

func (s *taxBlockAssignmentService) AssignTaxBlock(ctx context.Context, clientID string, req AssignTaxBlockRequest, userID string) (*AssignmentResult, error) {
	cID, err := parseID(clientID, "client")
	if err != nil {
		return nil, err
	}
	blockID, err := parseID(req.BlockID, "tax block")
	if err != nil {
		return nil, err
	}

	var (
		outcome  string
		transfer *model.TaxBlockTransfer
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureClient(txCtx, cID); err != nil {
			return err
		}
		target, err := s.findBlock(txCtx, blockID)
		if err != nil {
			return err
		}

		assoc, err := s.assocs.LockByClient(txCtx, cID)
		if err != nil && !isRecordNotFound(err) {
			return fmt.Errorf("failed to fetch client tax block: %w", err)
		}

		if assoc == nil {
			assoc = &model.ClientTaxBlock{ClientID: cID, BlockID: target.ID}
			if err := s.assocs.Create(txCtx, assoc); err != nil {
				if isDuplicateKey(err) {
					return conflict("client was assigned a tax block concurrently; retry the request")
				}
				return fmt.Errorf("failed to assign tax block: %w", err)
			}
			outcome = OutcomeAssigned
			return s.audit.Record(txCtx, userID, model.ActionAssignTaxBlock, cID.String(), target.Name,
				map[string]string{"block_id": target.ID.String()})
		}

		if assoc.BlockID == target.ID {
			outcome = OutcomeUnchanged
			return nil
		}

		if req.CutoffAt == nil {
			current, _ := s.blocks.FindByID(txCtx, assoc.BlockID)
			e := &TransferRequiredError{ClientID: cID, CurrentBlockID: assoc.BlockID, TargetBlockID: target.ID}
			if current != nil {
				e.CurrentBlockName = current.Name
			}
			return e
		}

		transfer, outcome, err = s.scheduleTransfer(txCtx, assoc, target, *req.CutoffAt, req.Notes, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, cID, outcome, transfer)
}

func (s *taxBlockAssignmentService) TransferTaxBlock(ctx context.Context, clientID string, req TransferTaxBlockRequest, userID string) (*AssignmentResult, error) {
	cID, err := parseID(clientID, "client")
	if err != nil {
		return nil, err
	}
	toID, err := parseID(req.ToBlockID, "tax block")
	if err != nil {
		return nil, err
	}
	if req.CutoffAt.IsZero() {
		return nil, invalid("cutoff_at is required")
	}

	var (
		outcome  string
		transfer *model.TaxBlockTransfer
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureClient(txCtx, cID); err != nil {
			return err
		}
		target, err := s.findBlock(txCtx, toID)
		if err != nil {
			return err
		}

		assoc, err := s.assocs.LockByClient(txCtx, cID)
		if err != nil {
			if isRecordNotFound(err) {
				return invalid("client has no tax block to transfer from; assign one first")
			}
			return fmt.Errorf("failed to fetch client tax block: %w", err)
		}
		if assoc.BlockID == target.ID {
			outcome = OutcomeUnchanged
			return nil
		}

		transfer, outcome, err = s.scheduleTransfer(txCtx, assoc, target, req.CutoffAt, req.Notes, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, cID, outcome, transfer)
}

func (s *taxBlockAssignmentService) ListTransfers(ctx context.Context, filter TransferFilter) ([]TransferResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	clientID, err := parseOptionalID(filter.ClientID, "client")
	if err != nil {
		return nil, 0, err
	}
	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	if status != "" && status != model.TransferPending && status != model.TransferApplied && status != model.TransferCancelled {
		return nil, 0, invalid("invalid transfer status %q", filter.Status)
	}

	transfers, total, err := s.assocs.ListTransfers(ctx, repository.TransferFilter{ClientID: clientID, Status: status}, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transfers: %w", err)
	}

	res := make([]TransferResponse, 0, len(transfers))
	for _, t := range transfers {
		res = append(res, toTransferResponse(t))
	}
	return res, total, nil
}

func (s *taxBlockAssignmentService) CancelTransfer(ctx context.Context, id string, userID string) (*TransferResponse, error) {
	transferID, err := parseID(id, "transfer")
	if err != nil {
		return nil, err
	}

	var transfer *model.TaxBlockTransfer
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var lockErr error
		transfer, lockErr = s.lockTransfer(txCtx, transferID)
		if lockErr != nil {
			if isRecordNotFound(lockErr) {
				return notFound("transfer not found")
			}
			return lockErr
		}
		if transfer.Status != model.TransferPending {
			return conflict("transfer is already %s", transfer.Status)
		}
		return s.cancel(txCtx, transfer, userID, "cancelled by user")
	})
	if err != nil {
		return nil, err
	}

	resp := toTransferResponse(*transfer)
	return &resp, nil
}

// ApplyDueTransfers moves every client whose pending transfer cutoff is <= now.
// Each transfer commits on its own; failures are collected and the rest still run.
func (s *taxBlockAssignmentService) ApplyDueTransfers(ctx context.Context, now time.Time) (int, error) {
	due, err := s.assocs.ListDueTransfers(ctx, now, dueTransferBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due transfers: %w", err)
	}

	applied := 0
	var errs []error
	for _, t := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		var moved *model.TaxBlockTransfer
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			assoc, err := s.assocs.LockByClient(txCtx, t.ClientID)
			if err != nil && !isRecordNotFound(err) {
				return fmt.Errorf("failed to lock client tax block: %w", err)
			}
			transfer, err := s.assocs.LockTransfer(txCtx, t.ID)
			if err != nil {
				return fmt.Errorf("failed to reload transfer: %w", err)
			}
			// another runner got here first
			if transfer.Status != model.TransferPending {
				return nil
			}
			if assoc == nil {
				return s.cancel(txCtx, transfer, "", "client no longer has a tax block")
			}

			if err := s.apply(txCtx, assoc, transfer, now, ""); err != nil {
				return err
			}
			moved = transfer
			return nil
		})
		if err != nil {
			s.metrics.IncrementTransferFailures()
			errs = append(errs, fmt.Errorf("transfer %s: %w", t.ID, err))
			continue
		}
		if moved != nil {
			applied++
			s.events.Publish(EventTaxBlockTransferred, toTransferResponse(*moved))
		}
	}

	s.metrics.IncrementTransfersApplied(applied)
	return applied, errors.Join(errs...)
}

// RemoveAssociation unassigns the client's block and cancels its pending transfer
func (s *taxBlockAssignmentService) RemoveAssociation(ctx context.Context, clientID string, userID string) error {
	cID, err := parseID(clientID, "client")
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		assoc, err := s.assocs.LockByClient(txCtx, cID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("client has no tax block")
			}
			return fmt.Errorf("failed to fetch client tax block: %w", err)
		}

		if pending, err := s.assocs.FindPendingTransfer(txCtx, cID); err == nil {
			if err := s.cancel(txCtx, pending, userID, "association removed"); err != nil {
				return err
			}
		} else if !isRecordNotFound(err) {
			return fmt.Errorf("failed to fetch pending transfer: %w", err)
		}

		if _, err := s.assocs.DeleteByClient(txCtx, cID); err != nil {
			return fmt.Errorf("failed to remove tax block: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionRemoveTaxBlock, cID.String(), "",
			map[string]string{"block_id": assoc.BlockID.String()})
	})
}

func (s *taxBlockAssignmentService) EffectiveBlock(ctx context.Context, clientID uuid.UUID, at time.Time) (uuid.UUID, error) {
	assoc, err := s.assocs.GetByClient(ctx, clientID)
	if err != nil {
		if isRecordNotFound(err) {
			return uuid.Nil, invalid("client has no tax block assigned")
		}
		return uuid.Nil, fmt.Errorf("failed to fetch client tax block: %w", err)
	}

	// the first transfer cutting over after at still starts from the block in force at at
	next, err := s.assocs.FindNextTransfer(ctx, clientID, at)
	if err == nil {
		return next.FromBlockID, nil
	}
	if !isRecordNotFound(err) {
		return uuid.Nil, fmt.Errorf("failed to fetch next transfer: %w", err)
	}

	pending, err := s.assocs.FindPendingTransfer(ctx, clientID)
	if err != nil {
		if isRecordNotFound(err) {
			return assoc.BlockID, nil
		}
		return uuid.Nil, fmt.Errorf("failed to fetch pending transfer: %w", err)
	}
	// due but not yet applied by the worker
	return pending.ToBlockID, nil
}

// --- Helpers ---

// scheduleTransfer records a PENDING transfer and applies it at once when the cutoff already passed
func (s *taxBlockAssignmentService) scheduleTransfer(ctx context.Context, assoc *model.ClientTaxBlock, target *model.TaxBlock, cutoff time.Time, notes, userID string) (*model.TaxBlockTransfer, string, error) {
	if _, err := s.assocs.FindPendingTransfer(ctx, assoc.ClientID); err == nil {
		return nil, "", conflict("client already has a pending tax block transfer; cancel it first")
	} else if !isRecordNotFound(err) {
		return nil, "", fmt.Errorf("failed to fetch pending transfer: %w", err)
	}

	transfer := &model.TaxBlockTransfer{
		ClientID:    assoc.ClientID,
		FromBlockID: assoc.BlockID,
		ToBlockID:   target.ID,
		CutoffAt:    cutoff.UTC(),
		Notes:       strings.TrimSpace(notes),
		Status:      model.TransferPending,
		CreatedBy:   actorID(userID),
	}
	if err := s.assocs.CreateTransfer(ctx, transfer); err != nil {
		if isDuplicateKey(err) {
			return nil, "", conflict("client already has a pending tax block transfer; cancel it first")
		}
		return nil, "", fmt.Errorf("failed to record transfer: %w", err)
	}
	if err := s.audit.Record(ctx, userID, model.ActionScheduleTransfer, transfer.ID.String(), target.Name, map[string]string{
		"client_id":     assoc.ClientID.String(),
		"from_block_id": assoc.BlockID.String(),
		"to_block_id":   target.ID.String(),
		"cutoff_at":     transfer.CutoffAt.Format(time.RFC3339),
	}); err != nil {
		return nil, "", err
	}

	now := s.now()
	if transfer.CutoffAt.After(now) {
		return transfer, OutcomeTransferScheduled, nil
	}
	if err := s.apply(ctx, assoc, transfer, now, userID); err != nil {
		return nil, "", err
	}
	return transfer, OutcomeTransferred, nil
}

func (s *taxBlockAssignmentService) apply(ctx context.Context, assoc *model.ClientTaxBlock, transfer *model.TaxBlockTransfer, now time.Time, userID string) error {
	assoc.BlockID = transfer.ToBlockID
	assoc.Block = nil
	if err := s.assocs.Update(ctx, assoc); err != nil {
		return fmt.Errorf("failed to move client tax block: %w", err)
	}

	appliedAt := now.UTC()
	transfer.Status = model.TransferApplied
	transfer.AppliedAt = &appliedAt
	if err := s.assocs.UpdateTransfer(ctx, transfer); err != nil {
		return fmt.Errorf("failed to mark transfer applied: %w", err)
	}

	return s.audit.Record(ctx, userID, model.ActionApplyTransfer, transfer.ID.String(), "", map[string]string{
		"client_id":   transfer.ClientID.String(),
		"to_block_id": transfer.ToBlockID.String(),
	})
}

// lockTransfer locks the client's association before the transfer row, the same order apply uses
func (s *taxBlockAssignmentService) lockTransfer(ctx context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error) {
	transfer, err := s.assocs.FindTransfer(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fetch transfer: %w", err)
	}
	if _, err := s.assocs.LockByClient(ctx, transfer.ClientID); err != nil && !isRecordNotFound(err) {
		return nil, fmt.Errorf("failed to lock client tax block: %w", err)
	}
	locked, err := s.assocs.LockTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transfer: %w", err)
	}
	return locked, nil
}

func (s *taxBlockAssignmentService) cancel(ctx context.Context, transfer *model.TaxBlockTransfer, userID, reason string) error {
	transfer.Status = model.TransferCancelled
	if err := s.assocs.UpdateTransfer(ctx, transfer); err != nil {
		return fmt.Errorf("failed to cancel transfer: %w", err)
	}
	return s.audit.Record(ctx, userID, model.ActionCancelTransfer, transfer.ID.String(), "", map[string]string{
		"client_id": transfer.ClientID.String(),
		"reason":    reason,
	})
}

func (s *taxBlockAssignmentService) finish(ctx context.Context, clientID uuid.UUID, outcome string, transfer *model.TaxBlockTransfer) (*AssignmentResult, error) {
	s.metrics.IncrementAssignment(outcome)

	current, err := s.currentState(ctx, clientID)
	if err != nil {
		return nil, err
	}
	result := &AssignmentResult{Outcome: outcome, Current: current}
	if transfer != nil {
		resp := toTransferResponse(*transfer)
		result.Transfer = &resp
		if outcome == OutcomeTransferred {
			s.events.Publish(EventTaxBlockTransferred, resp)
		}
	}
	return result, nil
}

func (s *taxBlockAssignmentService) currentState(ctx context.Context, clientID uuid.UUID) (*ClientBlockResponse, error) {
	resp := &ClientBlockResponse{ClientID: clientID.String()}

	assoc, err := s.assocs.GetByClient(ctx, clientID)
	if err != nil {
		if isRecordNotFound(err) {
			return resp, nil
		}
		return nil, fmt.Errorf("failed to fetch client tax block: %w", err)
	}
	blockID := assoc.BlockID.String()
	assignedAt := assoc.UpdatedAt.Format(time.RFC3339)
	resp.BlockID = &blockID
	resp.AssignedAt = &assignedAt
	if assoc.Block != nil {
		resp.BlockName = assoc.Block.Name
	}

	pending, err := s.assocs.FindPendingTransfer(ctx, clientID)
	if err == nil {
		t := toTransferResponse(*pending)
		resp.PendingTransfer = &t
	} else if !isRecordNotFound(err) {
		return nil, fmt.Errorf("failed to fetch pending transfer: %w", err)
	}
	return resp, nil
}

func (s *taxBlockAssignmentService) ensureClient(ctx context.Context, clientID uuid.UUID) error {
	if _, err := s.clients.FindByID(ctx, clientID); err != nil {
		if isRecordNotFound(err) {
			return notFound("client not found")
		}
		return fmt.Errorf("failed to fetch client: %w", err)
	}
	return nil
}

func (s *taxBlockAssignmentService) findBlock(ctx context.Context, blockID uuid.UUID) (*model.TaxBlock, error) {
	block, err := s.blocks.FindByID(ctx, blockID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("tax block not found")
		}
		return nil, fmt.Errorf("failed to fetch tax block: %w", err)
	}
	return block, nil
}

func toTransferResponse(t model.TaxBlockTransfer) TransferResponse {
	resp := TransferResponse{
		ID:          t.ID.String(),
		ClientID:    t.ClientID.String(),
		FromBlockID: t.FromBlockID.String(),
		ToBlockID:   t.ToBlockID.String(),
		CutoffAt:    t.CutoffAt.Format(time.RFC3339),
		Notes:       t.Notes,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
	if t.Client != nil {
		resp.ClientName = t.Client.Name
	}
	if t.CreatedBy != nil {
		s := t.CreatedBy.String()
		resp.CreatedBy = &s
	}
	if t.AppliedAt != nil {
		s := t.AppliedAt.Format(time.RFC3339)
		resp.AppliedAt = &s
	}
	return resp
}
