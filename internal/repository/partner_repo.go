package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClientCommissionRow is the per-client line of a partner's commission report
type ClientCommissionRow struct {
	ClientID    uuid.UUID       `gorm:"column:client_id"`
	ClientName  string          `gorm:"column:client_name"`
	SaleCount   int64           `gorm:"column:sale_count"`
	GrossAmount decimal.Decimal `gorm:"column:gross_amount"`
	FeeAmount   decimal.Decimal `gorm:"column:fee_amount"`
}

type PartnerRepository interface {
	Create(ctx context.Context, partner *model.Partner) error
	Update(ctx context.Context, partner *model.Partner) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Partner, error)
	// LockByID is FindByID with FOR UPDATE; serialises payouts of one partner
	LockByID(ctx context.Context, id uuid.UUID) (*model.Partner, error)
	List(ctx context.Context, search string, onlyActive bool, page, limit int) ([]model.Partner, int64, error)
	CommissionByClient(ctx context.Context, partnerID uuid.UUID, from, to time.Time) ([]ClientCommissionRow, error)
	CreatePayout(ctx context.Context, payout *model.CommissionPayout) error
	ListPayouts(ctx context.Context, partnerID uuid.UUID) ([]model.CommissionPayout, error)
	// CountOverlappingPayouts counts paid periods of the partner intersecting [from, to)
	CountOverlappingPayouts(ctx context.Context, partnerID uuid.UUID, from, to time.Time) (int64, error)
}

type partnerRepository struct {
	db *gorm.DB
}

func NewPartnerRepository(db *gorm.DB) PartnerRepository {
	return &partnerRepository{db: db}
}

func (r *partnerRepository) Create(ctx context.Context, partner *model.Partner) error {
	return GetDB(ctx, r.db).Create(partner).Error
}

func (r *partnerRepository) Update(ctx context.Context, partner *model.Partner) error {
	return GetDB(ctx, r.db).Save(partner).Error
}

func (r *partnerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Partner{}).Error
}

func (r *partnerRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	var partner model.Partner
	if err := GetDB(ctx, r.db).First(&partner, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	var partner model.Partner
	if err := forUpdate(GetDB(ctx, r.db)).First(&partner, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepository) List(ctx context.Context, search string, onlyActive bool, page, limit int) ([]model.Partner, int64, error) {
	var partners []model.Partner
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Partner{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ? OR document ILIKE ?", like, like, like)
	}
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("name ASC").Offset(offsetFor(page, limit)).Limit(limit).Find(&partners).Error; err != nil {
		return nil, 0, err
	}

	return partners, total, nil
}

// CommissionByClient sums sales per client of the partner within [from, to)
func (r *partnerRepository) CommissionByClient(ctx context.Context, partnerID uuid.UUID, from, to time.Time) ([]ClientCommissionRow, error) {
	var rows []ClientCommissionRow
	err := GetDB(ctx, r.db).Table("clients c").
		Select(`c.id AS client_id, c.name AS client_name,
			COUNT(s.id) AS sale_count,
			COALESCE(SUM(s.gross_amount), 0) AS gross_amount,
			COALESCE(SUM(s.fee_amount), 0) AS fee_amount`).
		Joins("LEFT JOIN sales s ON s.client_id = c.id AND s.sold_at >= ? AND s.sold_at < ?", from, to).
		Where("c.partner_id = ? AND c.deleted_at IS NULL", partnerID).
		Group("c.id, c.name").
		Order("fee_amount DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *partnerRepository) CreatePayout(ctx context.Context, payout *model.CommissionPayout) error {
	return GetDB(ctx, r.db).Create(payout).Error
}

func (r *partnerRepository) ListPayouts(ctx context.Context, partnerID uuid.UUID) ([]model.CommissionPayout, error) {
	var payouts []model.CommissionPayout
	if err := GetDB(ctx, r.db).Where("partner_id = ?", partnerID).Order("period_end DESC").Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *partnerRepository) CountOverlappingPayouts(ctx context.Context, partnerID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	// both periods are half-open, so touching edges do not overlap
	err := GetDB(ctx, r.db).Model(&model.CommissionPayout{}).
		Where("partner_id = ? AND period_start < ? AND period_end > ?", partnerID, to, from).
		Count(&count).Error
	return count, err
}
