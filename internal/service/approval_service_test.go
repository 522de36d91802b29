package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ApprovalSuite struct {
	suite.Suite

	ctx       context.Context
	sales     *fakeSales
	partners  *fakePartners
	approvals *fakeApprovals
	audit     *fakeAudit
	events    *fakeEvents
	svc       ApprovalService
	manager   string
}

func TestApprovalSuite(t *testing.T) {
	suite.Run(t, new(ApprovalSuite))
}

func (s *ApprovalSuite) SetupTest() {
	s.ctx = context.Background()
	s.sales = newFakeSales()
	s.partners = newFakePartners()
	s.approvals = newFakeApprovals()
	s.audit = &fakeAudit{}
	s.events = &fakeEvents{}
	s.svc = NewApprovalService(&fakeTx{}, s.approvals, s.sales, s.partners, s.audit, s.events)
	s.manager = uuid.NewString()
}

func (s *ApprovalSuite) refund(saleID uuid.UUID, amount string) (*ApprovalRequestResponse, error) {
	return s.svc.CreateRefundRequest(s.ctx, CreateRefundRequest{SaleID: saleID.String(), Amount: amount, Reason: "duplicate charge"}, uuid.NewString())
}

func (s *ApprovalSuite) TestRefundIsCappedAtGross() {
	sale := s.sales.add(uuid.New(), "100.00")

	_, err := s.refund(sale.ID, "100.01")
	s.True(errors.Is(err, ErrValidation))

	_, err = s.refund(sale.ID, "-5")
	s.True(errors.Is(err, ErrValidation))

	resp, err := s.refund(sale.ID, "100")
	s.Require().NoError(err)
	s.Equal(model.ApprovalReqTypeClientRefund, resp.RequestType)
	s.Equal("100.00", resp.Amount)
}

func (s *ApprovalSuite) TestOnePendingRefundPerSale() {
	sale := s.sales.add(uuid.New(), "80")

	_, err := s.refund(sale.ID, "10")
	s.Require().NoError(err)
	_, err = s.refund(sale.ID, "10")
	s.True(errors.Is(err, ErrConflict))
}

func (s *ApprovalSuite) TestApproveRefundRecordsRefund() {
	sale := s.sales.add(uuid.New(), "80")
	req, err := s.refund(sale.ID, "30")
	s.Require().NoError(err)

	approved, err := s.svc.ApproveRequest(s.ctx, req.ID, s.manager)
	s.Require().NoError(err)
	s.Equal(model.ApprovalApproved, approved.Status)
	s.Require().Len(s.sales.refunds, 1)
	s.Equal("30", s.sales.refunds[0].Amount.String())
	s.Equal("duplicate charge", s.sales.refunds[0].Reason)
	s.Contains(s.audit.actions, model.ActionRefundClient)
	s.Contains(s.events.events, EventApprovalDecided)

	// the remaining refundable amount shrinks
	_, err = s.refund(sale.ID, "50.01")
	s.True(errors.Is(err, ErrValidation))
	_, err = s.refund(sale.ID, "50")
	s.NoError(err)
}

func (s *ApprovalSuite) TestApproveRechecksRefundableAmount() {
	sale := s.sales.add(uuid.New(), "50")
	req, err := s.refund(sale.ID, "40")
	s.Require().NoError(err)

	// a refund granted elsewhere since the request was opened
	s.sales.refunds = append(s.sales.refunds, model.ClientRefund{ID: uuid.New(), SaleID: sale.ID, Amount: decimal.RequireFromString("20")})

	_, err = s.svc.ApproveRequest(s.ctx, req.ID, s.manager)
	s.True(errors.Is(err, ErrValidation))
}

func (s *ApprovalSuite) TestRejectRequiresReasonAndOnlyPendingChanges() {
	sale := s.sales.add(uuid.New(), "50")
	req, err := s.refund(sale.ID, "5")
	s.Require().NoError(err)

	_, err = s.svc.RejectRequest(s.ctx, req.ID, s.manager, "  ")
	s.True(errors.Is(err, ErrValidation))

	rejected, err := s.svc.RejectRequest(s.ctx, req.ID, s.manager, "not our fault")
	s.Require().NoError(err)
	s.Equal(model.ApprovalRejected, rejected.Status)
	s.Equal("not our fault", rejected.RejectionReason)

	_, err = s.svc.ApproveRequest(s.ctx, req.ID, s.manager)
	s.True(errors.Is(err, ErrConflict))
	_, err = s.svc.RejectRequest(s.ctx, req.ID, s.manager, "again")
	s.True(errors.Is(err, ErrConflict))
	s.Empty(s.sales.refunds)
}

func (s *ApprovalSuite) TestApprovePayoutCreatesCommissionPayout() {
	partner := s.partners.add("Acme", "25")
	s.partners.commissions = []repository.ClientCommissionRow{
		{ClientID: uuid.New(), ClientName: "Padaria", SaleCount: 3, GrossAmount: decimal.RequireFromString("300"), FeeAmount: decimal.RequireFromString("12")},
	}
	partnerSvc := NewPartnerService(&fakeTx{}, s.partners, s.approvals, s.audit)
	req, err := partnerSvc.RequestPayout(s.ctx, partner.ID.String(), marchPeriod, uuid.NewString())
	s.Require().NoError(err)

	_, err = s.svc.ApproveRequest(s.ctx, req.ID, s.manager)
	s.Require().NoError(err)

	s.Require().Len(s.partners.payouts, 1)
	payout := s.partners.payouts[0]
	s.Equal(partner.ID, payout.PartnerID)
	s.Equal("3.00", payout.Amount.StringFixed(2))
	s.True(payout.PeriodStart.Equal(marchPeriod.From))
	s.True(payout.PeriodEnd.Equal(marchPeriod.To))
	s.Contains(s.audit.actions, model.ActionPayCommission)

	payouts, err := partnerSvc.ListPayouts(s.ctx, partner.ID.String())
	s.Require().NoError(err)
	s.Len(payouts, 1)
}

func (s *ApprovalSuite) payoutFixture() (model.Partner, PartnerService) {
	partner := s.partners.add("Acme", "25")
	s.partners.commissions = []repository.ClientCommissionRow{
		{ClientID: uuid.New(), ClientName: "Padaria", SaleCount: 3, GrossAmount: decimal.RequireFromString("300"), FeeAmount: decimal.RequireFromString("12")},
	}
	return partner, NewPartnerService(&fakeTx{}, s.partners, s.approvals, s.audit)
}

func (s *ApprovalSuite) TestPaidPeriodCannotBeRequestedAgain() {
	partner, partnerSvc := s.payoutFixture()
	req, err := partnerSvc.RequestPayout(s.ctx, partner.ID.String(), marchPeriod, "")
	s.Require().NoError(err)
	_, err = s.svc.ApproveRequest(s.ctx, req.ID, s.manager)
	s.Require().NoError(err)

	_, err = partnerSvc.RequestPayout(s.ctx, partner.ID.String(), marchPeriod, "")
	s.True(errors.Is(err, ErrConflict))

	straddling := CommissionPeriod{
		From: time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	_, err = partnerSvc.RequestPayout(s.ctx, partner.ID.String(), straddling, "")
	s.True(errors.Is(err, ErrConflict))

	april := CommissionPeriod{From: marchPeriod.To, To: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	_, err = partnerSvc.RequestPayout(s.ctx, partner.ID.String(), april, "")
	s.NoError(err)
	s.Len(s.partners.payouts, 1)
}

func (s *ApprovalSuite) TestApproveRefusesPeriodPaidMeanwhile() {
	partner, partnerSvc := s.payoutFixture()
	req, err := partnerSvc.RequestPayout(s.ctx, partner.ID.String(), marchPeriod, "")
	s.Require().NoError(err)

	s.partners.payouts = append(s.partners.payouts, model.CommissionPayout{
		ID:          uuid.New(),
		PartnerID:   partner.ID,
		PeriodStart: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("1.00"),
	})

	_, err = s.svc.ApproveRequest(s.ctx, req.ID, s.manager)
	s.True(errors.Is(err, ErrConflict))
	s.Len(s.partners.payouts, 1)
	s.NotContains(s.audit.actions, model.ActionPayCommission)
}

func (s *ApprovalSuite) TestUnknownRequest() {
	_, err := s.svc.ApproveRequest(s.ctx, uuid.NewString(), s.manager)
	s.True(errors.Is(err, ErrNotFound))

	_, err = s.svc.CreateRefundRequest(s.ctx, CreateRefundRequest{SaleID: uuid.NewString(), Amount: "1"}, "")
	s.True(errors.Is(err, ErrNotFound))
}

func TestListApprovalRequests_RejectsUnknownStatus(t *testing.T) {
	svc := NewApprovalService(&fakeTx{}, newFakeApprovals(), newFakeSales(), newFakePartners(), &fakeAudit{}, nil)
	_, _, err := svc.ListApprovalRequests(context.Background(), ApprovalFilter{Status: "MAYBE"})
	require.True(t, errors.Is(err, ErrValidation))
}
