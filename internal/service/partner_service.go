package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Partner DTOs ---

type CreatePartnerRequest struct {
	Name           string `json:"name" binding:"required"`
	Document       string `json:"document"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	CommissionRate string `json:"commission_rate" binding:"required"` // percentage, e.g. "30"
}

type UpdatePartnerRequest struct {
	Name           *string `json:"name"`
	Document       *string `json:"document"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	CommissionRate *string `json:"commission_rate"`
	IsActive       *bool   `json:"is_active"`
}

type PartnerResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Document       string `json:"document"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	CommissionRate string `json:"commission_rate"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// --- Commission DTOs ---

type CommissionPeriod struct {
	From time.Time `json:"from" binding:"required"`
	To   time.Time `json:"to" binding:"required"`
}

type ClientCommissionLine struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	SaleCount   int64  `json:"sale_count"`
	GrossAmount string `json:"gross_amount"`
	FeeAmount   string `json:"fee_amount"`
	Commission  string `json:"commission"`
}

type CommissionReport struct {
	PartnerID      string                 `json:"partner_id"`
	PartnerName    string                 `json:"partner_name"`
	CommissionRate string                 `json:"commission_rate"`
	From           string                 `json:"from"`
	To             string                 `json:"to"`
	Clients        []ClientCommissionLine `json:"clients"`
	TotalGross     string                 `json:"total_gross"`
	TotalFees      string                 `json:"total_fees"`
	Commission     string                 `json:"commission"`
}

type CommissionPayoutResponse struct {
	ID                string `json:"id"`
	PartnerID         string `json:"partner_id"`
	ApprovalRequestID string `json:"approval_request_id"`
	PeriodStart       string `json:"period_start"`
	PeriodEnd         string `json:"period_end"`
	Amount            string `json:"amount"`
	PaidAt            string `json:"paid_at"`
}

// commissionSnapshot is the request_data stored on COMMISSION_PAYOUT approvals
type commissionSnapshot struct {
	PartnerID  string           `json:"partner_id"`
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	Commission string           `json:"commission"`
	Report     CommissionReport `json:"report"`
}

// --- Interface ---

type PartnerService interface {
	CreatePartner(ctx context.Context, req CreatePartnerRequest, userID string) (PartnerResponse, error)
	UpdatePartner(ctx context.Context, id string, req UpdatePartnerRequest, userID string) (PartnerResponse, error)
	DeletePartner(ctx context.Context, id string, userID string) error
	GetPartner(ctx context.Context, id string) (PartnerResponse, error)
	ListPartners(ctx context.Context, search string, onlyActive bool, page, limit int) ([]PartnerResponse, int64, error)
	CommissionReport(ctx context.Context, id string, period CommissionPeriod) (*CommissionReport, error)
	RequestPayout(ctx context.Context, id string, period CommissionPeriod, userID string) (*ApprovalRequestResponse, error)
	ListPayouts(ctx context.Context, id string) ([]CommissionPayoutResponse, error)
}

type partnerService struct {
	tx        repository.TransactionManager
	partners  repository.PartnerRepository
	approvals repository.ApprovalRepository
	audit     AuditService
}

func NewPartnerService(tx repository.TransactionManager, partners repository.PartnerRepository, approvals repository.ApprovalRepository, audit AuditService) PartnerService {
	return &partnerService{tx: tx, partners: partners, approvals: approvals, audit: audit}
}

// --- Implementation ---

func (s *partnerService) CreatePartner(ctx context.Context, req CreatePartnerRequest, userID string) (PartnerResponse, error) {
	if err := validateEmail(req.Email); err != nil {
		return PartnerResponse{}, err
	}
	rate, err := parsePercentage(req.CommissionRate, "commission_rate", true)
	if err != nil {
		return PartnerResponse{}, err
	}

	partner := model.Partner{
		Name:           strings.TrimSpace(req.Name),
		Document:       strings.TrimSpace(req.Document),
		Email:          strings.TrimSpace(req.Email),
		Phone:          req.Phone,
		CommissionRate: rate,
		IsActive:       true,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.partners.Create(txCtx, &partner); err != nil {
			return fmt.Errorf("failed to create partner: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionCreatePartner, partner.ID.String(), partner.Name, req)
	})
	if err != nil {
		return PartnerResponse{}, err
	}

	return toPartnerResponse(partner), nil
}

func (s *partnerService) UpdatePartner(ctx context.Context, id string, req UpdatePartnerRequest, userID string) (PartnerResponse, error) {
	partnerID, err := parseID(id, "partner")
	if err != nil {
		return PartnerResponse{}, err
	}

	var partner *model.Partner
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		partner, findErr = s.partners.FindByID(txCtx, partnerID)
		if findErr != nil {
			if isRecordNotFound(findErr) {
				return notFound("partner not found")
			}
			return fmt.Errorf("failed to fetch partner: %w", findErr)
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return invalid("partner name cannot be empty")
			}
			partner.Name = name
		}
		if req.Document != nil {
			partner.Document = strings.TrimSpace(*req.Document)
		}
		if req.Email != nil {
			if err := validateEmail(*req.Email); err != nil {
				return err
			}
			partner.Email = strings.TrimSpace(*req.Email)
		}
		if req.Phone != nil {
			partner.Phone = *req.Phone
		}
		if req.CommissionRate != nil {
			rate, err := parsePercentage(*req.CommissionRate, "commission_rate", true)
			if err != nil {
				return err
			}
			partner.CommissionRate = rate
		}
		if req.IsActive != nil {
			partner.IsActive = *req.IsActive
		}

		if err := s.partners.Update(txCtx, partner); err != nil {
			return fmt.Errorf("failed to update partner: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionUpdatePartner, partner.ID.String(), partner.Name, req)
	})
	if err != nil {
		return PartnerResponse{}, err
	}

	return toPartnerResponse(*partner), nil
}

func (s *partnerService) DeletePartner(ctx context.Context, id string, userID string) error {
	partnerID, err := parseID(id, "partner")
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		partner, err := s.partners.FindByID(txCtx, partnerID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("partner not found")
			}
			return fmt.Errorf("failed to fetch partner: %w", err)
		}
		if err := s.partners.Delete(txCtx, partnerID); err != nil {
			return fmt.Errorf("failed to delete partner: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionDeletePartner, partner.ID.String(), partner.Name,
			map[string]string{"deleted_id": id})
	})
}

func (s *partnerService) GetPartner(ctx context.Context, id string) (PartnerResponse, error) {
	partner, err := s.findPartner(ctx, id)
	if err != nil {
		return PartnerResponse{}, err
	}
	return toPartnerResponse(*partner), nil
}

func (s *partnerService) ListPartners(ctx context.Context, search string, onlyActive bool, page, limit int) ([]PartnerResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	partners, total, err := s.partners.List(ctx, strings.TrimSpace(search), onlyActive, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch partners: %w", err)
	}

	res := make([]PartnerResponse, 0, len(partners))
	for _, p := range partners {
		res = append(res, toPartnerResponse(p))
	}
	return res, total, nil
}

// CommissionReport sums the fees of the partner's clients in [from, to) and applies the commission rate
func (s *partnerService) CommissionReport(ctx context.Context, id string, period CommissionPeriod) (*CommissionReport, error) {
	if !period.To.After(period.From) {
		return nil, invalid("commission period end must be after its start")
	}
	partner, err := s.findPartner(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.partners.CommissionByClient(ctx, partner.ID, period.From, period.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute commissions: %w", err)
	}

	report := BuildCommissionReport(*partner, period, rows)
	return &report, nil
}

// RequestPayout opens a COMMISSION_PAYOUT approval holding a snapshot of the report
func (s *partnerService) RequestPayout(ctx context.Context, id string, period CommissionPeriod, userID string) (*ApprovalRequestResponse, error) {
	report, err := s.CommissionReport(ctx, id, period)
	if err != nil {
		return nil, err
	}

	amount, _ := decimal.NewFromString(report.Commission)
	if !amount.IsPositive() {
		return nil, invalid("partner has no commission to pay in this period")
	}
	partnerID, _ := parseID(report.PartnerID, "partner")

	snapshot, err := json.Marshal(commissionSnapshot{
		PartnerID:  report.PartnerID,
		From:       period.From.UTC(),
		To:         period.To.UTC(),
		Commission: report.Commission,
		Report:     *report,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payout snapshot: %w", err)
	}

	approval := model.ApprovalRequest{
		RequestType: model.ApprovalReqTypeCommissionPayout,
		ReferenceID: partnerID,
		RequestData: string(snapshot),
		Amount:      amount,
		Status:      model.ApprovalPending,
		RequestedBy: actorID(userID),
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.partners.LockByID(txCtx, partnerID); err != nil {
			if isRecordNotFound(err) {
				return notFound("partner not found")
			}
			return fmt.Errorf("failed to lock partner: %w", err)
		}

		pending, err := s.approvals.CountPendingFor(txCtx, model.ApprovalReqTypeCommissionPayout, partnerID)
		if err != nil {
			return fmt.Errorf("failed to check pending payouts: %w", err)
		}
		if pending > 0 {
			return conflict("partner already has a pending commission payout request")
		}
		if err := ensurePeriodUnpaid(txCtx, s.partners, partnerID, period.From, period.To); err != nil {
			return err
		}

		if err := s.approvals.Create(txCtx, &approval); err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionCreateApprovalRequest, approval.ID.String(), approval.RequestType,
			map[string]string{"partner_id": report.PartnerID, "amount": report.Commission})
	})
	if err != nil {
		return nil, err
	}

	resp := toApprovalResponse(approval)
	return &resp, nil
}

func (s *partnerService) ListPayouts(ctx context.Context, id string) ([]CommissionPayoutResponse, error) {
	partner, err := s.findPartner(ctx, id)
	if err != nil {
		return nil, err
	}

	payouts, err := s.partners.ListPayouts(ctx, partner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payouts: %w", err)
	}

	res := make([]CommissionPayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		res = append(res, CommissionPayoutResponse{
			ID:                p.ID.String(),
			PartnerID:         p.PartnerID.String(),
			ApprovalRequestID: p.ApprovalRequestID.String(),
			PeriodStart:       p.PeriodStart.Format(time.RFC3339),
			PeriodEnd:         p.PeriodEnd.Format(time.RFC3339),
			Amount:            p.Amount.StringFixed(2),
			PaidAt:            p.PaidAt.Format(time.RFC3339),
		})
	}
	return res, nil
}

// --- Helpers ---

// ensurePeriodUnpaid refuses a payout whose period intersects one already paid
func ensurePeriodUnpaid(ctx context.Context, partners repository.PartnerRepository, partnerID uuid.UUID, from, to time.Time) error {
	paid, err := partners.CountOverlappingPayouts(ctx, partnerID, from.UTC(), to.UTC())
	if err != nil {
		return fmt.Errorf("failed to check paid periods: %w", err)
	}
	if paid > 0 {
		return conflict("commission for this period has already been paid")
	}
	return nil
}

// BuildCommissionReport applies the partner's rate to each client's fees.
// The total is computed from the summed fees so per-line rounding does not drift.
func BuildCommissionReport(partner model.Partner, period CommissionPeriod, rows []repository.ClientCommissionRow) CommissionReport {
	report := CommissionReport{
		PartnerID:      partner.ID.String(),
		PartnerName:    partner.Name,
		CommissionRate: partner.CommissionRate.StringFixed(4),
		From:           period.From.Format(time.RFC3339),
		To:             period.To.Format(time.RFC3339),
		Clients:        make([]ClientCommissionLine, 0, len(rows)),
	}

	totalGross := decimal.Zero
	totalFees := decimal.Zero
	for _, r := range rows {
		totalGross = totalGross.Add(r.GrossAmount)
		totalFees = totalFees.Add(r.FeeAmount)
		report.Clients = append(report.Clients, ClientCommissionLine{
			ClientID:    r.ClientID.String(),
			ClientName:  r.ClientName,
			SaleCount:   r.SaleCount,
			GrossAmount: r.GrossAmount.StringFixed(2),
			FeeAmount:   r.FeeAmount.StringFixed(2),
			Commission:  commissionOf(r.FeeAmount, partner.CommissionRate).StringFixed(2),
		})
	}

	report.TotalGross = totalGross.StringFixed(2)
	report.TotalFees = totalFees.StringFixed(2)
	report.Commission = commissionOf(totalFees, partner.CommissionRate).StringFixed(2)
	return report
}

func commissionOf(fees, rate decimal.Decimal) decimal.Decimal {
	return fees.Mul(rate).Div(hundred).Round(2)
}

func (s *partnerService) findPartner(ctx context.Context, id string) (*model.Partner, error) {
	partnerID, err := parseID(id, "partner")
	if err != nil {
		return nil, err
	}
	partner, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("partner not found")
		}
		return nil, fmt.Errorf("failed to fetch partner: %w", err)
	}
	return partner, nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("invalid email format")
	}
	return nil
}

func toPartnerResponse(p model.Partner) PartnerResponse {
	return PartnerResponse{
		ID:             p.ID.String(),
		Name:           p.Name,
		Document:       p.Document,
		Email:          p.Email,
		Phone:          p.Phone,
		CommissionRate: p.CommissionRate.StringFixed(4),
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
}
