package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransferFilter narrows the transfer listing
type TransferFilter struct {
	ClientID *uuid.UUID
	Status   string
}

// ClientTaxBlockRepository persists the client -> block association and scheduled transfers
type ClientTaxBlockRepository interface {
	// GetByClient returns the association or gorm.ErrRecordNotFound
	GetByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientTaxBlock, error)
	// LockByClient is GetByClient with FOR UPDATE; call inside RunInTx
	LockByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientTaxBlock, error)
	Create(ctx context.Context, assoc *model.ClientTaxBlock) error
	Update(ctx context.Context, assoc *model.ClientTaxBlock) error
	DeleteByClient(ctx context.Context, clientID uuid.UUID) (bool, error)

	CreateTransfer(ctx context.Context, transfer *model.TaxBlockTransfer) error
	UpdateTransfer(ctx context.Context, transfer *model.TaxBlockTransfer) error
	FindTransfer(ctx context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error)
	// LockTransfer is FindTransfer with FOR UPDATE; take it after LockByClient
	LockTransfer(ctx context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error)
	FindPendingTransfer(ctx context.Context, clientID uuid.UUID) (*model.TaxBlockTransfer, error)
	// FindNextTransfer returns the earliest pending or applied transfer with cutoff_at > after
	FindNextTransfer(ctx context.Context, clientID uuid.UUID, after time.Time) (*model.TaxBlockTransfer, error)
	ListTransfers(ctx context.Context, filter TransferFilter, page, limit int) ([]model.TaxBlockTransfer, int64, error)
	ListDueTransfers(ctx context.Context, now time.Time, limit int) ([]model.TaxBlockTransfer, error)
}

type clientTaxBlockRepository struct {
	db *gorm.DB
}

func NewClientTaxBlockRepository(db *gorm.DB) ClientTaxBlockRepository {
	return &clientTaxBlockRepository{db: db}
}

func (r *clientTaxBlockRepository) GetByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientTaxBlock, error) {
	var assoc model.ClientTaxBlock
	if err := GetDB(ctx, r.db).Preload("Block").First(&assoc, "client_id = ?", clientID).Error; err != nil {
		return nil, err
	}
	return &assoc, nil
}

func (r *clientTaxBlockRepository) LockByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientTaxBlock, error) {
	var assoc model.ClientTaxBlock
	if err := forUpdate(GetDB(ctx, r.db)).First(&assoc, "client_id = ?", clientID).Error; err != nil {
		return nil, err
	}
	return &assoc, nil
}

func (r *clientTaxBlockRepository) Create(ctx context.Context, assoc *model.ClientTaxBlock) error {
	return GetDB(ctx, r.db).Omit("Client", "Block").Create(assoc).Error
}

func (r *clientTaxBlockRepository) Update(ctx context.Context, assoc *model.ClientTaxBlock) error {
	return GetDB(ctx, r.db).Omit("Client", "Block").Save(assoc).Error
}

func (r *clientTaxBlockRepository) DeleteByClient(ctx context.Context, clientID uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Where("client_id = ?", clientID).Delete(&model.ClientTaxBlock{})
	return res.RowsAffected > 0, res.Error
}

func (r *clientTaxBlockRepository) CreateTransfer(ctx context.Context, transfer *model.TaxBlockTransfer) error {
	return GetDB(ctx, r.db).Omit("Client").Create(transfer).Error
}

func (r *clientTaxBlockRepository) UpdateTransfer(ctx context.Context, transfer *model.TaxBlockTransfer) error {
	return GetDB(ctx, r.db).Omit("Client").Save(transfer).Error
}

func (r *clientTaxBlockRepository) FindTransfer(ctx context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error) {
	var transfer model.TaxBlockTransfer
	if err := GetDB(ctx, r.db).First(&transfer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *clientTaxBlockRepository) LockTransfer(ctx context.Context, id uuid.UUID) (*model.TaxBlockTransfer, error) {
	var transfer model.TaxBlockTransfer
	if err := forUpdate(GetDB(ctx, r.db)).First(&transfer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *clientTaxBlockRepository) FindNextTransfer(ctx context.Context, clientID uuid.UUID, after time.Time) (*model.TaxBlockTransfer, error) {
	var transfer model.TaxBlockTransfer
	err := GetDB(ctx, r.db).
		Where("client_id = ? AND status IN ? AND cutoff_at > ?", clientID,
			[]string{model.TransferPending, model.TransferApplied}, after).
		Order("cutoff_at ASC").
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *clientTaxBlockRepository) FindPendingTransfer(ctx context.Context, clientID uuid.UUID) (*model.TaxBlockTransfer, error) {
	var transfer model.TaxBlockTransfer
	err := GetDB(ctx, r.db).
		Where("client_id = ? AND status = ?", clientID, model.TransferPending).
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *clientTaxBlockRepository) ListTransfers(ctx context.Context, filter TransferFilter, page, limit int) ([]model.TaxBlockTransfer, int64, error) {
	var transfers []model.TaxBlockTransfer
	var total int64

	query := GetDB(ctx, r.db).Model(&model.TaxBlockTransfer{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("Client").Order("cutoff_at DESC").Offset(offsetFor(page, limit)).Limit(limit).Find(&transfers).Error; err != nil {
		return nil, 0, err
	}

	return transfers, total, nil
}

// ListDueTransfers returns pending transfers whose cutoff has passed, oldest cutoff first
func (r *clientTaxBlockRepository) ListDueTransfers(ctx context.Context, now time.Time, limit int) ([]model.TaxBlockTransfer, error) {
	var transfers []model.TaxBlockTransfer
	err := GetDB(ctx, r.db).
		Where("status = ? AND cutoff_at <= ?", model.TransferPending, now).
		Order("cutoff_at ASC").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}
