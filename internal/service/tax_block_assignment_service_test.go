package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AssignmentSuite struct {
	suite.Suite

	ctx     context.Context
	now     time.Time
	clients *fakeClients
	blocks  *fakeBlocks
	assocs  *fakeAssocs
	audit   *fakeAudit
	events  *fakeEvents
	svc     *taxBlockAssignmentService

	client model.Client
	gold   model.TaxBlock
	silver model.TaxBlock
}

func TestAssignmentSuite(t *testing.T) {
	suite.Run(t, new(AssignmentSuite))
}

func (s *AssignmentSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.clients = newFakeClients()
	s.blocks = newFakeBlocks()
	s.assocs = newFakeAssocs()
	s.audit = &fakeAudit{}
	s.events = &fakeEvents{}

	svc := NewTaxBlockAssignmentService(&fakeTx{}, s.clients, s.blocks, s.assocs, s.audit, nil, s.events)
	s.svc = svc.(*taxBlockAssignmentService)
	s.svc.now = func() time.Time { return s.now }

	s.client = s.clients.add("Padaria Central", nil)
	s.gold = s.blocks.add("Gold")
	s.silver = s.blocks.add("Silver")
}

func (s *AssignmentSuite) assign(blockID uuid.UUID, cutoff *time.Time) (*AssignmentResult, error) {
	return s.svc.AssignTaxBlock(s.ctx, s.client.ID.String(), AssignTaxBlockRequest{
		BlockID:  blockID.String(),
		CutoffAt: cutoff,
		Notes:    "renegotiated",
	}, uuid.NewString())
}

func (s *AssignmentSuite) TestFirstAssignmentCreatesAssociation() {
	res, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)

	s.Equal(OutcomeAssigned, res.Outcome)
	s.Require().NotNil(res.Current.BlockID)
	s.Equal(s.gold.ID.String(), *res.Current.BlockID)
	s.Len(s.assocs.rows, 1)
	s.Contains(s.audit.actions, model.ActionAssignTaxBlock)
}

func (s *AssignmentSuite) TestSameBlockIsUnchanged() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)

	res, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	s.Equal(OutcomeUnchanged, res.Outcome)
	s.Empty(s.assocs.transfers)
}

func (s *AssignmentSuite) TestDifferentBlockWithoutCutoffRequiresTransfer() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)

	_, err = s.assign(s.silver.ID, nil)
	s.Require().Error(err)
	s.True(errors.Is(err, ErrTransferRequired))

	var tr *TransferRequiredError
	s.Require().ErrorAs(err, &tr)
	s.Equal(s.gold.ID, tr.CurrentBlockID)
	s.Equal("Gold", tr.CurrentBlockName)
	s.Equal(s.silver.ID, tr.TargetBlockID)

	// association untouched, nothing recorded
	s.Equal(s.gold.ID, s.assocs.rows[s.client.ID].BlockID)
	s.Empty(s.assocs.transfers)
}

func (s *AssignmentSuite) TestFutureCutoffSchedulesTransfer() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)

	cutoff := s.now.Add(48 * time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	s.Equal(OutcomeTransferScheduled, res.Outcome)
	s.Require().NotNil(res.Transfer)
	s.Equal(model.TransferPending, res.Transfer.Status)
	s.Require().NotNil(res.Current.PendingTransfer)
	s.Equal(s.gold.ID, s.assocs.rows[s.client.ID].BlockID)
	s.NotContains(s.events.events, EventTaxBlockTransferred)
}

func (s *AssignmentSuite) TestPastCutoffTransfersImmediately() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)

	cutoff := s.now.Add(-time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	s.Equal(OutcomeTransferred, res.Outcome)
	s.Equal(model.TransferApplied, res.Transfer.Status)
	s.Equal(s.silver.ID, s.assocs.rows[s.client.ID].BlockID)
	s.Len(s.assocs.rows, 1)
	s.Contains(s.events.events, EventTaxBlockTransferred)
}

func (s *AssignmentSuite) TestSecondPendingTransferConflicts() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	bronze := s.blocks.add("Bronze")

	cutoff := s.now.Add(24 * time.Hour)
	_, err = s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	_, err = s.assign(bronze.ID, &cutoff)
	s.True(errors.Is(err, ErrConflict))
}

func (s *AssignmentSuite) TestTransferWithoutAssociationIsInvalid() {
	_, err := s.svc.TransferTaxBlock(s.ctx, s.client.ID.String(), TransferTaxBlockRequest{
		ToBlockID: s.silver.ID.String(),
		CutoffAt:  s.now.Add(time.Hour),
	}, "")
	s.True(errors.Is(err, ErrValidation))
}

func (s *AssignmentSuite) TestApplyDueTransfers() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(2 * time.Hour)
	_, err = s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	applied, err := s.svc.ApplyDueTransfers(s.ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Zero(applied)
	s.Equal(s.gold.ID, s.assocs.rows[s.client.ID].BlockID)

	applied, err = s.svc.ApplyDueTransfers(s.ctx, s.now.Add(3*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, applied)
	s.Equal(s.silver.ID, s.assocs.rows[s.client.ID].BlockID)

	// applied transfers are not picked up again
	applied, err = s.svc.ApplyDueTransfers(s.ctx, s.now.Add(4*time.Hour))
	s.Require().NoError(err)
	s.Zero(applied)
}

func (s *AssignmentSuite) TestApplyCancelsTransferWhenAssociationIsGone() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	delete(s.assocs.rows, s.client.ID)

	applied, err := s.svc.ApplyDueTransfers(s.ctx, s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Zero(applied)
	id := uuid.MustParse(res.Transfer.ID)
	s.Equal(model.TransferCancelled, s.assocs.transfers[id].Status)
}

func (s *AssignmentSuite) TestCancelTransfer() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	cancelled, err := s.svc.CancelTransfer(s.ctx, res.Transfer.ID, "")
	s.Require().NoError(err)
	s.Equal(model.TransferCancelled, cancelled.Status)

	_, err = s.svc.CancelTransfer(s.ctx, res.Transfer.ID, "")
	s.True(errors.Is(err, ErrConflict))

	// a new transfer can be scheduled once the old one is cancelled
	_, err = s.assign(s.silver.ID, &cutoff)
	s.NoError(err)
}

func (s *AssignmentSuite) TestRemoveAssociationCancelsPendingTransfer() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.RemoveAssociation(s.ctx, s.client.ID.String(), ""))
	s.Empty(s.assocs.rows)
	s.Equal(model.TransferCancelled, s.assocs.transfers[uuid.MustParse(res.Transfer.ID)].Status)

	err = s.svc.RemoveAssociation(s.ctx, s.client.ID.String(), "")
	s.True(errors.Is(err, ErrNotFound))
}

func (s *AssignmentSuite) TestEffectiveBlock() {
	_, err := s.svc.EffectiveBlock(s.ctx, s.client.ID, s.now)
	s.True(errors.Is(err, ErrValidation))

	_, err = s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	_, err = s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)

	before, err := s.svc.EffectiveBlock(s.ctx, s.client.ID, cutoff.Add(-time.Minute))
	s.Require().NoError(err)
	s.Equal(s.gold.ID, before)

	atCutoff, err := s.svc.EffectiveBlock(s.ctx, s.client.ID, cutoff)
	s.Require().NoError(err)
	s.Equal(s.silver.ID, atCutoff)
}

func (s *AssignmentSuite) TestUnknownClientOrBlock() {
	_, err := s.svc.AssignTaxBlock(s.ctx, uuid.NewString(), AssignTaxBlockRequest{BlockID: s.gold.ID.String()}, "")
	s.True(errors.Is(err, ErrNotFound))

	_, err = s.assign(uuid.New(), nil)
	s.True(errors.Is(err, ErrNotFound))

	_, err = s.svc.AssignTaxBlock(s.ctx, "not-a-uuid", AssignTaxBlockRequest{BlockID: s.gold.ID.String()}, "")
	s.True(errors.Is(err, ErrValidation))
}

// A client never ends up with more than one association, whatever sequence of calls is made.
func TestAssignment_AtMostOneAssociation(t *testing.T) {
	ctx := context.Background()
	clients := newFakeClients()
	blocks := newFakeBlocks()
	assocs := newFakeAssocs()
	svc := NewTaxBlockAssignmentService(&fakeTx{}, clients, blocks, assocs, &fakeAudit{}, nil, nil)

	client := clients.add("Mercado Sol", nil)
	ids := []uuid.UUID{blocks.add("A").ID, blocks.add("B").ID, blocks.add("C").ID}
	past := time.Now().Add(-time.Minute)

	for i := 0; i < 30; i++ {
		target := ids[i%len(ids)]
		var cutoff *time.Time
		if i%2 == 0 {
			cutoff = &past
		}
		_, err := svc.AssignTaxBlock(ctx, client.ID.String(), AssignTaxBlockRequest{BlockID: target.String(), CutoffAt: cutoff}, "")
		if err != nil {
			require.True(t, errors.Is(err, ErrTransferRequired) || errors.Is(err, ErrConflict), err)
		}
		assert.LessOrEqual(t, len(assocs.rows), 1)
	}
}

func (s *AssignmentSuite) TestEffectiveBlockBeforeAppliedCutoff() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	toSilver := s.now.Add(-24 * time.Hour)
	_, err = s.assign(s.silver.ID, &toSilver)
	s.Require().NoError(err)
	bronze := s.blocks.add("Bronze")
	toBronze := s.now.Add(-12 * time.Hour)
	res, err := s.assign(bronze.ID, &toBronze)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeTransferred, res.Outcome)

	cases := []struct {
		at   time.Time
		want uuid.UUID
	}{
		{s.now.Add(-48 * time.Hour), s.gold.ID},
		{toSilver.Add(-time.Second), s.gold.ID},
		{toSilver, s.silver.ID},
		{s.now.Add(-18 * time.Hour), s.silver.ID},
		{toBronze, bronze.ID},
		{s.now, bronze.ID},
	}
	for _, tc := range cases {
		got, err := s.svc.EffectiveBlock(s.ctx, s.client.ID, tc.at)
		s.Require().NoError(err)
		s.Equal(tc.want, got, "at %s", tc.at)
	}
}

func (s *AssignmentSuite) TestEffectiveBlockIgnoresCancelledTransfer() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)
	_, err = s.svc.CancelTransfer(s.ctx, res.Transfer.ID, "")
	s.Require().NoError(err)

	got, err := s.svc.EffectiveBlock(s.ctx, s.client.ID, cutoff.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(s.gold.ID, got)
}

// markApplied makes the transfer look as if another transaction applied it while we waited on the lock.
func (s *AssignmentSuite) markApplied(id uuid.UUID) {
	s.assocs.onLock = func(clientID uuid.UUID) {
		t := s.assocs.transfers[id]
		appliedAt := s.now
		t.Status = model.TransferApplied
		t.AppliedAt = &appliedAt
		s.assocs.transfers[id] = t

		assoc := s.assocs.rows[clientID]
		assoc.BlockID = t.ToBlockID
		s.assocs.rows[clientID] = assoc
	}
}

func (s *AssignmentSuite) TestCancelAfterConcurrentApplyConflicts() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)
	id := uuid.MustParse(res.Transfer.ID)

	s.markApplied(id)
	_, err = s.svc.CancelTransfer(s.ctx, res.Transfer.ID, "")
	s.True(errors.Is(err, ErrConflict))

	stored := s.assocs.transfers[id]
	s.Equal(model.TransferApplied, stored.Status)
	s.NotNil(stored.AppliedAt)
	s.Equal(s.silver.ID, s.assocs.rows[s.client.ID].BlockID)
}

func (s *AssignmentSuite) TestApplyDueSkipsTransferAppliedElsewhere() {
	_, err := s.assign(s.gold.ID, nil)
	s.Require().NoError(err)
	cutoff := s.now.Add(time.Hour)
	res, err := s.assign(s.silver.ID, &cutoff)
	s.Require().NoError(err)
	auditBefore := len(s.audit.actions)

	s.markApplied(uuid.MustParse(res.Transfer.ID))
	applied, err := s.svc.ApplyDueTransfers(s.ctx, s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Zero(applied)
	s.Len(s.audit.actions, auditBefore)
	s.NotContains(s.events.events, EventTaxBlockTransferred)
}
