package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateRefundRequest struct {
	SaleID string `json:"sale_id" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

type ApprovalFilter struct {
	Status      string // PENDING, APPROVED, REJECTED or empty for all
	RequestType string
	Page        int
	Limit       int
}

type RejectRequestDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type ApprovalRequestResponse struct {
	ID              string  `json:"id"`
	RequestType     string  `json:"request_type"`
	ReferenceID     string  `json:"reference_id"`
	RequestData     string  `json:"request_data"`
	Amount          string  `json:"amount"`
	Status          string  `json:"status"`
	RequestedBy     *string `json:"requested_by"`
	RequesterName   string  `json:"requester_name"`
	ApprovedBy      *string `json:"approved_by"`
	ApproverName    string  `json:"approver_name"`
	ApprovedAt      *string `json:"approved_at"`
	RejectionReason string  `json:"rejection_reason"`
	CreatedAt       string  `json:"created_at"`
}

// refundSnapshot is the request_data stored on CLIENT_REFUND approvals
type refundSnapshot struct {
	SaleID      string `json:"sale_id"`
	ClientID    string `json:"client_id"`
	GrossAmount string `json:"gross_amount"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
}

// --- Interface ---

type ApprovalService interface {
	CreateRefundRequest(ctx context.Context, req CreateRefundRequest, userID string) (*ApprovalRequestResponse, error)
	ListApprovalRequests(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequestResponse, int64, error)
	GetApprovalRequest(ctx context.Context, id string) (*ApprovalRequestResponse, error)
	ApproveRequest(ctx context.Context, id string, userID string) (*ApprovalRequestResponse, error)
	RejectRequest(ctx context.Context, id string, userID string, reason string) (*ApprovalRequestResponse, error)
}

type approvalService struct {
	tx        repository.TransactionManager
	approvals repository.ApprovalRepository
	sales     repository.SaleRepository
	partners  repository.PartnerRepository
	audit     AuditService
	events    EventPublisher
	now       func() time.Time
}

func NewApprovalService(tx repository.TransactionManager, approvals repository.ApprovalRepository, sales repository.SaleRepository, partners repository.PartnerRepository, audit AuditService, events EventPublisher) ApprovalService {
	return &approvalService{
		tx:        tx,
		approvals: approvals,
		sales:     sales,
		partners:  partners,
		audit:     audit,
		events:    publisherOrNoop(events),
		now:       time.Now,
	}
}

// --- Implementation ---

// CreateRefundRequest opens a CLIENT_REFUND approval against a recorded sale
func (s *approvalService) CreateRefundRequest(ctx context.Context, req CreateRefundRequest, userID string) (*ApprovalRequestResponse, error) {
	saleID, err := parseID(req.SaleID, "sale")
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return nil, invalid("invalid refund amount %q", req.Amount)
	}
	if !amount.IsPositive() {
		return nil, invalid("refund amount must be greater than zero")
	}
	amount = amount.Round(2)

	var approval model.ApprovalRequest
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sale, err := s.sales.FindByID(txCtx, saleID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("sale not found")
			}
			return fmt.Errorf("failed to fetch sale: %w", err)
		}

		pending, err := s.approvals.CountPendingFor(txCtx, model.ApprovalReqTypeClientRefund, sale.ID)
		if err != nil {
			return fmt.Errorf("failed to check pending refunds: %w", err)
		}
		if pending > 0 {
			return conflict("sale already has a pending refund request")
		}

		if err := s.checkRefundable(txCtx, sale, amount); err != nil {
			return err
		}

		snapshot, err := json.Marshal(refundSnapshot{
			SaleID:      sale.ID.String(),
			ClientID:    sale.ClientID.String(),
			GrossAmount: sale.GrossAmount.StringFixed(2),
			Amount:      amount.StringFixed(2),
			Reason:      req.Reason,
		})
		if err != nil {
			return fmt.Errorf("failed to encode refund snapshot: %w", err)
		}

		approval = model.ApprovalRequest{
			RequestType: model.ApprovalReqTypeClientRefund,
			ReferenceID: sale.ID,
			RequestData: string(snapshot),
			Amount:      amount,
			Status:      model.ApprovalPending,
			RequestedBy: actorID(userID),
		}
		if err := s.approvals.Create(txCtx, &approval); err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}

		return s.audit.Record(txCtx, userID, model.ActionCreateApprovalRequest, approval.ID.String(), approval.RequestType,
			map[string]string{"sale_id": sale.ID.String(), "amount": amount.StringFixed(2)})
	})
	if err != nil {
		return nil, err
	}

	return s.GetApprovalRequest(ctx, approval.ID.String())
}

func (s *approvalService) ListApprovalRequests(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequestResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	switch status {
	case "", model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected:
	default:
		return nil, 0, invalid("invalid approval status %q", filter.Status)
	}
	requestType := strings.ToUpper(strings.TrimSpace(filter.RequestType))
	switch requestType {
	case "", model.ApprovalReqTypeCommissionPayout, model.ApprovalReqTypeClientRefund:
	default:
		return nil, 0, invalid("invalid request type %q", filter.RequestType)
	}

	approvals, total, err := s.approvals.List(ctx, status, requestType, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval requests: %w", err)
	}

	result := make([]ApprovalRequestResponse, 0, len(approvals))
	for _, a := range approvals {
		result = append(result, toApprovalResponse(a))
	}
	return result, total, nil
}

func (s *approvalService) GetApprovalRequest(ctx context.Context, id string) (*ApprovalRequestResponse, error) {
	approvalID, err := parseID(id, "approval request")
	if err != nil {
		return nil, err
	}
	approval, err := s.approvals.FindByIDWithRelations(ctx, approvalID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("approval request not found")
		}
		return nil, fmt.Errorf("failed to fetch approval request: %w", err)
	}
	resp := toApprovalResponse(*approval)
	return &resp, nil
}

func (s *approvalService) ApproveRequest(ctx context.Context, id string, userID string) (*ApprovalRequestResponse, error) {
	approvalID, err := parseID(id, "approval request")
	if err != nil {
		return nil, err
	}
	approverID, err := parseID(userID, "user")
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		approval, err := s.lockPending(txCtx, approvalID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		approval.Status = model.ApprovalApproved
		approval.ApprovedBy = &approverID
		approval.ApprovedAt = &now
		if err := s.approvals.Update(txCtx, approval); err != nil {
			return fmt.Errorf("failed to update approval request: %w", err)
		}

		if err := s.executeApproval(txCtx, approval, userID); err != nil {
			return err
		}

		return s.audit.Record(txCtx, userID, model.ActionApproveRequest, approval.ID.String(), approval.RequestType,
			map[string]string{"reference_id": approval.ReferenceID.String(), "amount": approval.Amount.StringFixed(2)})
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndPublish(ctx, id)
}

func (s *approvalService) RejectRequest(ctx context.Context, id string, userID string, reason string) (*ApprovalRequestResponse, error) {
	approvalID, err := parseID(id, "approval request")
	if err != nil {
		return nil, err
	}
	approverID, err := parseID(userID, "user")
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("rejection reason is required")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		approval, err := s.lockPending(txCtx, approvalID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		approval.Status = model.ApprovalRejected
		approval.ApprovedBy = &approverID
		approval.ApprovedAt = &now
		approval.RejectionReason = reason
		if err := s.approvals.Update(txCtx, approval); err != nil {
			return fmt.Errorf("failed to update approval request: %w", err)
		}

		return s.audit.Record(txCtx, userID, model.ActionRejectRequest, approval.ID.String(), approval.RequestType,
			map[string]string{"reference_id": approval.ReferenceID.String(), "reason": reason})
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndPublish(ctx, id)
}

// executeApproval performs the side effect of an approved request:
// a payout row for commissions, a refund row for client refunds
func (s *approvalService) executeApproval(ctx context.Context, approval *model.ApprovalRequest, userID string) error {
	switch approval.RequestType {
	case model.ApprovalReqTypeCommissionPayout:
		return s.executePayout(ctx, approval, userID)
	case model.ApprovalReqTypeClientRefund:
		return s.executeRefund(ctx, approval, userID)
	default:
		return invalid("unknown request type: %s", approval.RequestType)
	}
}

func (s *approvalService) executePayout(ctx context.Context, approval *model.ApprovalRequest, userID string) error {
	var snap commissionSnapshot
	if err := json.Unmarshal([]byte(approval.RequestData), &snap); err != nil {
		return fmt.Errorf("failed to decode payout snapshot: %w", err)
	}

	if _, err := s.partners.LockByID(ctx, approval.ReferenceID); err != nil {
		if isRecordNotFound(err) {
			return conflict("partner no longer exists")
		}
		return fmt.Errorf("failed to fetch partner: %w", err)
	}
	if err := ensurePeriodUnpaid(ctx, s.partners, approval.ReferenceID, snap.From, snap.To); err != nil {
		return err
	}

	payout := model.CommissionPayout{
		PartnerID:         approval.ReferenceID,
		ApprovalRequestID: approval.ID,
		PeriodStart:       snap.From,
		PeriodEnd:         snap.To,
		Amount:            approval.Amount,
		PaidAt:            *approval.ApprovedAt,
	}
	if err := s.partners.CreatePayout(ctx, &payout); err != nil {
		return fmt.Errorf("failed to record commission payout: %w", err)
	}

	return s.audit.Record(ctx, userID, model.ActionPayCommission, payout.ID.String(), approval.ReferenceID.String(),
		map[string]string{"amount": payout.Amount.StringFixed(2), "approval_id": approval.ID.String()})
}

func (s *approvalService) executeRefund(ctx context.Context, approval *model.ApprovalRequest, userID string) error {
	var snap refundSnapshot
	if err := json.Unmarshal([]byte(approval.RequestData), &snap); err != nil {
		return fmt.Errorf("failed to decode refund snapshot: %w", err)
	}

	sale, err := s.sales.FindByID(ctx, approval.ReferenceID)
	if err != nil {
		if isRecordNotFound(err) {
			return conflict("sale no longer exists")
		}
		return fmt.Errorf("failed to fetch sale: %w", err)
	}

	// other refunds may have been granted since the request was opened
	if err := s.checkRefundable(ctx, sale, approval.Amount); err != nil {
		return err
	}

	refund := model.ClientRefund{
		SaleID:            sale.ID,
		ClientID:          sale.ClientID,
		ApprovalRequestID: approval.ID,
		Amount:            approval.Amount,
		Reason:            snap.Reason,
	}
	if err := s.sales.CreateRefund(ctx, &refund); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}

	return s.audit.Record(ctx, userID, model.ActionRefundClient, refund.ID.String(), sale.ClientID.String(),
		map[string]string{"sale_id": sale.ID.String(), "amount": refund.Amount.StringFixed(2)})
}

// --- Helpers ---

func (s *approvalService) lockPending(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	approval, err := s.approvals.LockByID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("approval request not found")
		}
		return nil, fmt.Errorf("failed to fetch approval request: %w", err)
	}
	if approval.Status != model.ApprovalPending {
		return nil, conflict("approval request is already %s", approval.Status)
	}
	return approval, nil
}

// checkRefundable rejects amounts above what is left of the sale after earlier refunds
func (s *approvalService) checkRefundable(ctx context.Context, sale *model.Sale, amount decimal.Decimal) error {
	raw, err := s.sales.RefundedAmount(ctx, sale.ID)
	if err != nil {
		return fmt.Errorf("failed to sum refunds: %w", err)
	}
	refunded, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("failed to parse refunded amount %q: %w", raw, err)
	}
	remaining := sale.GrossAmount.Sub(refunded)
	if amount.GreaterThan(remaining) {
		return invalid("refund of %s exceeds the refundable %s", amount.StringFixed(2), remaining.StringFixed(2))
	}
	return nil
}

func (s *approvalService) reloadAndPublish(ctx context.Context, id string) (*ApprovalRequestResponse, error) {
	resp, err := s.GetApprovalRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(EventApprovalDecided, resp)
	return resp, nil
}

func toApprovalResponse(a model.ApprovalRequest) ApprovalRequestResponse {
	resp := ApprovalRequestResponse{
		ID:              a.ID.String(),
		RequestType:     a.RequestType,
		ReferenceID:     a.ReferenceID.String(),
		RequestData:     a.RequestData,
		Amount:          a.Amount.StringFixed(2),
		Status:          a.Status,
		RejectionReason: a.RejectionReason,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}

	if a.RequestedBy != nil {
		s := a.RequestedBy.String()
		resp.RequestedBy = &s
	}
	if a.Requester != nil {
		resp.RequesterName = a.Requester.Username
	}
	if a.ApprovedBy != nil {
		s := a.ApprovedBy.String()
		resp.ApprovedBy = &s
	}
	if a.Approver != nil {
		resp.ApproverName = a.Approver.Username
	}
	if a.ApprovedAt != nil {
		s := a.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &s
	}

	return resp
}
