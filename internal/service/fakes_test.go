package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repositories. Reads return copies so services must call Update to persist changes,
// like they would against postgres.

type fakeTx struct{ calls int }

func (f *fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeAudit struct{ actions []string }

func (f *fakeAudit) Record(_ context.Context, _, action, _, _ string, _ interface{}) error {
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeAudit) GetAuditLogs(context.Context, AuditFilter) ([]AuditLogResponse, int64, error) {
	return nil, 0, nil
}

type fakeEvents struct{ events []string }

func (f *fakeEvents) Publish(event string, _ interface{}) { f.events = append(f.events, event) }

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// --- clients ---

type fakeClients struct{ rows map[uuid.UUID]model.Client }

func newFakeClients() *fakeClients { return &fakeClients{rows: map[uuid.UUID]model.Client{}} }

func (f *fakeClients) add(name string, partnerID *uuid.UUID) model.Client {
	c := model.Client{ID: uuid.New(), Name: name, Document: uuid.NewString()[:11], PartnerID: partnerID, IsActive: true}
	f.rows[c.ID] = c
	return c
}

func (f *fakeClients) Create(_ context.Context, c *model.Client) error {
	for _, existing := range f.rows {
		if existing.Document == c.Document {
			return gorm.ErrDuplicatedKey
		}
	}
	ensureID(&c.ID)
	f.rows[c.ID] = *c
	return nil
}

func (f *fakeClients) Update(_ context.Context, c *model.Client) error {
	f.rows[c.ID] = *c
	return nil
}

func (f *fakeClients) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeClients) FindByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	c, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (f *fakeClients) FindByDocument(_ context.Context, document string) (*model.Client, error) {
	for _, c := range f.rows {
		if c.Document == document {
			c := c
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeClients) List(_ context.Context, filter repository.ClientFilter, _, _ int) ([]model.Client, int64, error) {
	var out []model.Client
	for _, c := range f.rows {
		if filter.PartnerID != nil && (c.PartnerID == nil || *c.PartnerID != *filter.PartnerID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

// --- tax blocks ---

type fakeBlocks struct {
	rows  map[uuid.UUID]model.TaxBlock
	rates map[uuid.UUID][]model.TaxRate
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{rows: map[uuid.UUID]model.TaxBlock{}, rates: map[uuid.UUID][]model.TaxRate{}}
}

func (f *fakeBlocks) add(name string) model.TaxBlock {
	b := model.TaxBlock{ID: uuid.New(), Name: name}
	f.rows[b.ID] = b
	return b
}

func (f *fakeBlocks) Create(_ context.Context, b *model.TaxBlock) error {
	if _, err := f.FindByName(context.Background(), b.Name); err == nil {
		return gorm.ErrDuplicatedKey
	}
	ensureID(&b.ID)
	f.rows[b.ID] = *b
	return nil
}

func (f *fakeBlocks) Update(_ context.Context, b *model.TaxBlock) error {
	f.rows[b.ID] = *b
	return nil
}

func (f *fakeBlocks) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	delete(f.rates, id)
	return nil
}

func (f *fakeBlocks) FindByID(_ context.Context, id uuid.UUID) (*model.TaxBlock, error) {
	b, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

func (f *fakeBlocks) FindByIDWithRates(ctx context.Context, id uuid.UUID) (*model.TaxBlock, error) {
	b, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Rates = append([]model.TaxRate(nil), f.rates[id]...)
	return b, nil
}

func (f *fakeBlocks) FindByName(_ context.Context, name string) (*model.TaxBlock, error) {
	for _, b := range f.rows {
		if b.Name == name {
			b := b
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBlocks) List(_ context.Context, _ string, _, _ int) ([]model.TaxBlock, int64, error) {
	out := make([]model.TaxBlock, 0, len(f.rows))
	for _, b := range f.rows {
		out = append(out, b)
	}
	return out, int64(len(out)), nil
}

func (f *fakeBlocks) ReplaceRates(_ context.Context, blockID uuid.UUID, rates []model.TaxRate) error {
	stored := make([]model.TaxRate, len(rates))
	for i, r := range rates {
		r.BlockID = blockID
		ensureID(&r.ID)
		stored[i] = r
	}
	f.rates[blockID] = stored
	return nil
}

func (f *fakeBlocks) DeleteRate(_ context.Context, blockID, rateID uuid.UUID) (bool, error) {
	rates := f.rates[blockID]
	for i, r := range rates {
		if r.ID == rateID {
			f.rates[blockID] = append(rates[:i], rates[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBlocks) FindRate(_ context.Context, blockID uuid.UUID, method string, installment int) (*model.TaxRate, error) {
	for _, r := range f.rates[blockID] {
		if r.PaymentMethod == method && r.Installment == installment {
			r := r
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBlocks) ListClients(context.Context, uuid.UUID) ([]model.Client, error) {
	return nil, nil
}

// --- client tax block associations and transfers ---

type fakeAssocs struct {
	rows      map[uuid.UUID]model.ClientTaxBlock // by client
	transfers map[uuid.UUID]model.TaxBlockTransfer
	order     []uuid.UUID

	// onLock runs when a row lock is taken, standing in for a transaction that commits first
	onLock func(clientID uuid.UUID)
}

func newFakeAssocs() *fakeAssocs {
	return &fakeAssocs{rows: map[uuid.UUID]model.ClientTaxBlock{}, transfers: map[uuid.UUID]model.TaxBlockTransfer{}}
}

func (f *fakeAssocs) GetByClient(_ context.Context, clientID uuid.UUID) (*model.ClientTaxBlock, error) {
	a, ok := f.rows[clientID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (f *fakeAssocs) LockByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientTaxBlock, error) {
	if f.onLock != nil {
		hook := f.onLock
		f.onLock = nil
		hook(clientID)
	}
	return f.GetByClient(ctx, clientID)
}

func (f *fakeAssocs) Create(_ context.Context, a *model.ClientTaxBlock) error {
	if _, ok := f.rows[a.ClientID]; ok {
		return gorm.ErrDuplicatedKey
	}
	ensureID(&a.ID)
	f.rows[a.ClientID] = *a
	return nil
}

func (f *fakeAssocs) Update(_ context.Context, a *model.ClientTaxBlock) error {
	f.rows[a.ClientID] = *a
	return nil
}

func (f *fakeAssocs) DeleteByClient(_ context.Context, clientID uuid.UUID) (bool, error) {
	_, ok := f.rows[clientID]
	delete(f.rows, clientID)
	return ok, nil
}

func (f *fakeAssocs) CreateTransfer(_ context.Context, t *model.TaxBlockTransfer) error {
	ensureID(&t.ID)
	t.CreatedAt = time.Now()
	f.transfers[t.ID] = *t
	f.order = append(f.order, t.ID)
	return nil
}

func (f *fakeAssocs) UpdateTransfer(_ context.Context, t *model.TaxBlockTransfer) error {
	f.transfers[t.ID] = *t
	return nil
}

func (f *fakeAssocs) FindTransfer(_ context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error) {
	t, ok := f.transfers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (f *fakeAssocs) LockTransfer(ctx context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error) {
	return f.FindTransfer(ctx, id)
}

func (f *fakeAssocs) FindNextTransfer(_ context.Context, clientID uuid.UUID, after time.Time) (*model.TaxBlockTransfer, error) {
	var next *model.TaxBlockTransfer
	for _, id := range f.order {
		t := f.transfers[id]
		if t.ClientID != clientID || t.Status == model.TransferCancelled || !t.CutoffAt.After(after) {
			continue
		}
		if next == nil || t.CutoffAt.Before(next.CutoffAt) {
			next = &t
		}
	}
	if next == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return next, nil
}

func (f *fakeAssocs) FindPendingTransfer(_ context.Context, clientID uuid.UUID) (*model.TaxBlockTransfer, error) {
	for _, id := range f.order {
		t := f.transfers[id]
		if t.ClientID == clientID && t.Status == model.TransferPending {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAssocs) ListTransfers(_ context.Context, filter repository.TransferFilter, _, _ int) ([]model.TaxBlockTransfer, int64, error) {
	var out []model.TaxBlockTransfer
	for _, id := range f.order {
		t := f.transfers[id]
		if filter.ClientID != nil && t.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (f *fakeAssocs) ListDueTransfers(_ context.Context, now time.Time, limit int) ([]model.TaxBlockTransfer, error) {
	var out []model.TaxBlockTransfer
	for _, id := range f.order {
		t := f.transfers[id]
		if t.Status == model.TransferPending && !t.CutoffAt.After(now) {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- machines ---

type fakeMachines struct {
	rows      map[uuid.UUID]model.Machine
	movements []model.MachineMovement
}

func newFakeMachines() *fakeMachines { return &fakeMachines{rows: map[uuid.UUID]model.Machine{}} }

func (f *fakeMachines) add(serial, status string, clientID *uuid.UUID) model.Machine {
	m := model.Machine{ID: uuid.New(), SerialNumber: serial, Model: "P2", Status: status, ClientID: clientID}
	f.rows[m.ID] = m
	return m
}

func (f *fakeMachines) Create(_ context.Context, m *model.Machine) error {
	ensureID(&m.ID)
	f.rows[m.ID] = *m
	return nil
}

func (f *fakeMachines) Update(_ context.Context, m *model.Machine) error {
	f.rows[m.ID] = *m
	return nil
}

func (f *fakeMachines) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeMachines) FindByID(_ context.Context, id uuid.UUID) (*model.Machine, error) {
	m, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (f *fakeMachines) FindBySerial(_ context.Context, serial string) (*model.Machine, error) {
	for _, m := range f.rows {
		if m.SerialNumber == serial {
			m := m
			return &m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMachines) LockByID(ctx context.Context, id uuid.UUID) (*model.Machine, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeMachines) List(context.Context, repository.MachineFilter, int, int) ([]model.Machine, int64, error) {
	out := make([]model.Machine, 0, len(f.rows))
	for _, m := range f.rows {
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

func (f *fakeMachines) CountByStatus(context.Context) ([]model.MachineStatusCount, error) {
	counts := map[string]int64{}
	for _, m := range f.rows {
		counts[m.Status]++
	}
	out := make([]model.MachineStatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, model.MachineStatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (f *fakeMachines) CreateMovement(_ context.Context, mv *model.MachineMovement) error {
	ensureID(&mv.ID)
	f.movements = append(f.movements, *mv)
	return nil
}

func (f *fakeMachines) ListMovements(_ context.Context, machineID uuid.UUID) ([]model.MachineMovement, error) {
	var out []model.MachineMovement
	for _, mv := range f.movements {
		if mv.MachineID == machineID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// --- sales ---

type fakeSales struct {
	rows    map[uuid.UUID]model.Sale
	refunds []model.ClientRefund
}

func newFakeSales() *fakeSales { return &fakeSales{rows: map[uuid.UUID]model.Sale{}} }

func (f *fakeSales) add(clientID uuid.UUID, gross string) model.Sale {
	s := model.Sale{ID: uuid.New(), ClientID: clientID, PaymentMethod: model.PaymentMethodDebit, Installments: 1,
		GrossAmount: decimal.RequireFromString(gross), SoldAt: time.Now()}
	f.rows[s.ID] = s
	return s
}

func (f *fakeSales) Create(_ context.Context, s *model.Sale) error {
	ensureID(&s.ID)
	f.rows[s.ID] = *s
	return nil
}

func (f *fakeSales) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	s, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (f *fakeSales) List(ctx context.Context, filter repository.SaleFilter, _, _ int) ([]model.Sale, int64, error) {
	out, _ := f.ListAll(ctx, filter)
	return out, int64(len(out)), nil
}

func (f *fakeSales) ListAll(_ context.Context, filter repository.SaleFilter) ([]model.Sale, error) {
	var out []model.Sale
	for _, s := range f.rows {
		if filter.ClientID != nil && s.ClientID != *filter.ClientID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SoldAt.Before(out[j].SoldAt) })
	return out, nil
}

func (f *fakeSales) CreateRefund(_ context.Context, r *model.ClientRefund) error {
	ensureID(&r.ID)
	f.refunds = append(f.refunds, *r)
	return nil
}

func (f *fakeSales) RefundedAmount(_ context.Context, saleID uuid.UUID) (string, error) {
	total := decimal.Zero
	for _, r := range f.refunds {
		if r.SaleID == saleID {
			total = total.Add(r.Amount)
		}
	}
	return total.StringFixed(2), nil
}

// --- partners ---

type fakePartners struct {
	rows        map[uuid.UUID]model.Partner
	commissions []repository.ClientCommissionRow
	payouts     []model.CommissionPayout
}

func newFakePartners() *fakePartners { return &fakePartners{rows: map[uuid.UUID]model.Partner{}} }

func (f *fakePartners) add(name, rate string) model.Partner {
	p := model.Partner{ID: uuid.New(), Name: name, CommissionRate: decimal.RequireFromString(rate), IsActive: true}
	f.rows[p.ID] = p
	return p
}

func (f *fakePartners) Create(_ context.Context, p *model.Partner) error {
	ensureID(&p.ID)
	f.rows[p.ID] = *p
	return nil
}

func (f *fakePartners) Update(_ context.Context, p *model.Partner) error {
	f.rows[p.ID] = *p
	return nil
}

func (f *fakePartners) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakePartners) FindByID(_ context.Context, id uuid.UUID) (*model.Partner, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f *fakePartners) LockByID(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	return f.FindByID(ctx, id)
}

func (f *fakePartners) List(context.Context, string, bool, int, int) ([]model.Partner, int64, error) {
	out := make([]model.Partner, 0, len(f.rows))
	for _, p := range f.rows {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (f *fakePartners) CommissionByClient(context.Context, uuid.UUID, time.Time, time.Time) ([]repository.ClientCommissionRow, error) {
	return f.commissions, nil
}

func (f *fakePartners) CreatePayout(_ context.Context, p *model.CommissionPayout) error {
	ensureID(&p.ID)
	f.payouts = append(f.payouts, *p)
	return nil
}

func (f *fakePartners) CountOverlappingPayouts(_ context.Context, partnerID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	for _, p := range f.payouts {
		if p.PartnerID == partnerID && p.PeriodStart.Before(to) && p.PeriodEnd.After(from) {
			n++
		}
	}
	return n, nil
}

func (f *fakePartners) ListPayouts(_ context.Context, partnerID uuid.UUID) ([]model.CommissionPayout, error) {
	var out []model.CommissionPayout
	for _, p := range f.payouts {
		if p.PartnerID == partnerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- approvals ---

type fakeApprovals struct{ rows map[uuid.UUID]model.ApprovalRequest }

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{rows: map[uuid.UUID]model.ApprovalRequest{}}
}

func (f *fakeApprovals) Create(_ context.Context, a *model.ApprovalRequest) error {
	ensureID(&a.ID)
	f.rows[a.ID] = *a
	return nil
}

func (f *fakeApprovals) FindByID(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	a, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (f *fakeApprovals) LockByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeApprovals) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeApprovals) List(_ context.Context, status, requestType string, _, _ int) ([]model.ApprovalRequest, int64, error) {
	var out []model.ApprovalRequest
	for _, a := range f.rows {
		if (status == "" || a.Status == status) && (requestType == "" || a.RequestType == requestType) {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeApprovals) CountPendingFor(_ context.Context, requestType string, referenceID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range f.rows {
		if a.RequestType == requestType && a.ReferenceID == referenceID && a.Status == model.ApprovalPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeApprovals) Update(_ context.Context, a *model.ApprovalRequest) error {
	f.rows[a.ID] = *a
	return nil
}

// --- users ---

type fakeUsers struct {
	rows   map[uuid.UUID]model.User
	tokens map[string]model.RefreshToken
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{rows: map[uuid.UUID]model.User{}, tokens: map[string]model.RefreshToken{}}
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	ensureID(&u.ID)
	f.rows[u.ID] = *u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (f *fakeUsers) find(match func(model.User) bool) (*model.User, error) {
	for _, u := range f.rows {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.Email == email })
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.Username == username })
}

func (f *fakeUsers) List(_ context.Context, role string, _, _ int) ([]model.User, int64, error) {
	var out []model.User
	for _, u := range f.rows {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeUsers) CountByRole(_ context.Context, role string) (int64, error) {
	var n int64
	for _, u := range f.rows {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	f.rows[u.ID] = *u
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeUsers) SaveRefreshToken(_ context.Context, t *model.RefreshToken) error {
	f.tokens[t.Token] = *t
	return nil
}

func (f *fakeUsers) GetRefreshToken(_ context.Context, token string) (*model.RefreshToken, error) {
	t, ok := f.tokens[token]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	t.User = f.rows[t.UserID]
	return &t, nil
}

func (f *fakeUsers) DeleteRefreshToken(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

func (f *fakeUsers) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for k, t := range f.tokens {
		if t.ExpiresAt.Before(before) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

// --- roles ---

type fakeRoles struct {
	roles     map[string]model.Role
	codes     map[string][]string
	codeCalls int
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: map[string]model.Role{}, codes: map[string][]string{}}
}

func (f *fakeRoles) Create(_ context.Context, r *model.Role) error {
	if _, ok := f.roles[r.Name]; ok {
		return gorm.ErrDuplicatedKey
	}
	ensureID(&r.ID)
	f.roles[r.Name] = *r
	return nil
}

func (f *fakeRoles) Update(_ context.Context, r *model.Role) error {
	for name, existing := range f.roles {
		if existing.ID == r.ID {
			delete(f.roles, name)
		}
	}
	f.roles[r.Name] = *r
	return nil
}

func (f *fakeRoles) Delete(_ context.Context, r *model.Role) error {
	delete(f.roles, r.Name)
	return nil
}

func (f *fakeRoles) FindByIDWithPermissions(_ context.Context, id uuid.UUID) (*model.Role, error) {
	for _, r := range f.roles {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRoles) FindByName(_ context.Context, name string) (*model.Role, error) {
	r, ok := f.roles[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

func (f *fakeRoles) ListAll(context.Context) ([]model.Role, error) {
	out := make([]model.Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRoles) ListPermissions(context.Context) ([]model.Permission, error) { return nil, nil }

func (f *fakeRoles) FindPermissionsByIDs(context.Context, []uuid.UUID) ([]model.Permission, error) {
	return nil, nil
}

func (f *fakeRoles) ReplacePermissions(_ context.Context, role *model.Role, perms []model.Permission) error {
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	f.codes[role.Name] = codes
	return nil
}

func (f *fakeRoles) GetPermissionCodesByRoleName(_ context.Context, roleName string) ([]string, error) {
	f.codeCalls++
	return f.codes[roleName], nil
}

func (f *fakeRoles) UpsertPermission(_ context.Context, p *model.Permission) error {
	ensureID(&p.ID)
	return nil
}

// --- tickets ---

type fakeTickets struct {
	rows     map[uuid.UUID]model.Ticket
	messages []model.TicketMessage
}

func newFakeTickets() *fakeTickets { return &fakeTickets{rows: map[uuid.UUID]model.Ticket{}} }

func (f *fakeTickets) add(clientID uuid.UUID, status string) model.Ticket {
	t := model.Ticket{ID: uuid.New(), ClientID: clientID, Subject: "POS offline", Priority: model.PriorityMedium, Status: status}
	f.rows[t.ID] = t
	return t
}

func (f *fakeTickets) Create(_ context.Context, t *model.Ticket) error {
	ensureID(&t.ID)
	f.rows[t.ID] = *t
	return nil
}

func (f *fakeTickets) Update(_ context.Context, t *model.Ticket) error {
	f.rows[t.ID] = *t
	return nil
}

func (f *fakeTickets) FindByID(_ context.Context, id uuid.UUID) (*model.Ticket, error) {
	t, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (f *fakeTickets) FindByIDWithMessages(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	t, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, m := range f.messages {
		if m.TicketID == id {
			t.Messages = append(t.Messages, m)
		}
	}
	return t, nil
}

func (f *fakeTickets) List(context.Context, repository.TicketFilter, int, int) ([]model.Ticket, int64, error) {
	out := make([]model.Ticket, 0, len(f.rows))
	for _, t := range f.rows {
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (f *fakeTickets) AddMessage(_ context.Context, m *model.TicketMessage) error {
	ensureID(&m.ID)
	f.messages = append(f.messages, *m)
	return nil
}

// --- statistics ---

type fakeStats struct {
	totals      repository.SaleTotals
	openTickets int64
	pending     int64
	series      []model.SalesPeriod
	groupBy     string
	err         error
}

func (f *fakeStats) GetSaleTotals(context.Context, time.Time, time.Time) (repository.SaleTotals, error) {
	return f.totals, f.err
}

func (f *fakeStats) GetTotalsByPaymentMethod(context.Context, time.Time, time.Time) ([]model.PaymentMethodTotal, error) {
	return []model.PaymentMethodTotal{{PaymentMethod: model.PaymentMethodPix, SaleCount: f.totals.SaleCount, GrossAmount: f.totals.GrossAmount}}, nil
}

func (f *fakeStats) GetTopClients(_ context.Context, _, _ time.Time, limit int) ([]model.ClientRanking, error) {
	out := make([]model.ClientRanking, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, model.ClientRanking{ClientName: "client"})
	}
	return out, nil
}

func (f *fakeStats) CountTicketsByStatus(context.Context, ...string) (int64, error) {
	return f.openTickets, nil
}

func (f *fakeStats) CountApprovalsByStatus(context.Context, string) (int64, error) {
	return f.pending, nil
}

func (f *fakeStats) GetSalesSeries(_ context.Context, groupBy string, _, _ time.Time) ([]model.SalesPeriod, error) {
	f.groupBy = groupBy
	return f.series, nil
}
