package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaleFilter narrows sale listings and exports
type SaleFilter struct {
	ClientID      *uuid.UUID
	PartnerID     *uuid.UUID
	PaymentMethod string
	From          *time.Time
	To            *time.Time
}

type SaleRepository interface {
	Create(ctx context.Context, sale *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	List(ctx context.Context, filter SaleFilter, page, limit int) ([]model.Sale, int64, error)
	// ListAll returns every sale matching filter, for exports
	ListAll(ctx context.Context, filter SaleFilter) ([]model.Sale, error)

	CreateRefund(ctx context.Context, refund *model.ClientRefund) error
	RefundedAmount(ctx context.Context, saleID uuid.UUID) (string, error)
}

type saleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) Create(ctx context.Context, sale *model.Sale) error {
	return GetDB(ctx, r.db).Omit("Client").Create(sale).Error
}

func (r *saleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	if err := GetDB(ctx, r.db).Preload("Client").First(&sale, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) filtered(ctx context.Context, filter SaleFilter) *gorm.DB {
	query := GetDB(ctx, r.db).Model(&model.Sale{})
	if filter.ClientID != nil {
		query = query.Where("sales.client_id = ?", *filter.ClientID)
	}
	if filter.PartnerID != nil {
		query = query.Where("sales.client_id IN (?)",
			GetDB(ctx, r.db).Model(&model.Client{}).Select("id").Where("partner_id = ?", *filter.PartnerID))
	}
	if filter.PaymentMethod != "" {
		query = query.Where("sales.payment_method = ?", filter.PaymentMethod)
	}
	if filter.From != nil {
		query = query.Where("sales.sold_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("sales.sold_at < ?", *filter.To)
	}
	return query.Session(&gorm.Session{})
}

func (r *saleRepository) List(ctx context.Context, filter SaleFilter, page, limit int) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	query := r.filtered(ctx, filter)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("Client").Order("sold_at DESC").Offset(offsetFor(page, limit)).Limit(limit).Find(&sales).Error; err != nil {
		return nil, 0, err
	}

	return sales, total, nil
}

func (r *saleRepository) ListAll(ctx context.Context, filter SaleFilter) ([]model.Sale, error) {
	var sales []model.Sale
	err := r.filtered(ctx, filter).Preload("Client").Order("sold_at ASC").Find(&sales).Error
	return sales, err
}

func (r *saleRepository) CreateRefund(ctx context.Context, refund *model.ClientRefund) error {
	return GetDB(ctx, r.db).Create(refund).Error
}

// RefundedAmount sums the refunds already granted for a sale, as a decimal string
func (r *saleRepository) RefundedAmount(ctx context.Context, saleID uuid.UUID) (string, error) {
	var total string
	err := GetDB(ctx, r.db).Model(&model.ClientRefund{}).
		Select("COALESCE(CAST(SUM(amount) AS TEXT), '0')").
		Where("sale_id = ?", saleID).
		Scan(&total).Error
	return total, err
}
