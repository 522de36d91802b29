package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaxBlockRepository interface {
	Create(ctx context.Context, block *model.TaxBlock) error
	Update(ctx context.Context, block *model.TaxBlock) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TaxBlock, error)
	FindByIDWithRates(ctx context.Context, id uuid.UUID) (*model.TaxBlock, error)
	FindByName(ctx context.Context, name string) (*model.TaxBlock, error)
	List(ctx context.Context, search string, page, limit int) ([]model.TaxBlock, int64, error)

	ReplaceRates(ctx context.Context, blockID uuid.UUID, rates []model.TaxRate) error
	DeleteRate(ctx context.Context, blockID, rateID uuid.UUID) (bool, error)
	FindRate(ctx context.Context, blockID uuid.UUID, method string, installment int) (*model.TaxRate, error)
	ListClients(ctx context.Context, blockID uuid.UUID) ([]model.Client, error)
}

type taxBlockRepository struct {
	db *gorm.DB
}

func NewTaxBlockRepository(db *gorm.DB) TaxBlockRepository {
	return &taxBlockRepository{db: db}
}

func (r *taxBlockRepository) Create(ctx context.Context, block *model.TaxBlock) error {
	return GetDB(ctx, r.db).Omit("Rates").Create(block).Error
}

func (r *taxBlockRepository) Update(ctx context.Context, block *model.TaxBlock) error {
	return GetDB(ctx, r.db).Omit("Rates").Save(block).Error
}

// Delete cascades to rates, associations and transfers that reference the block
func (r *taxBlockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("from_block_id = ? OR to_block_id = ?", id, id).Delete(&model.TaxBlockTransfer{}).Error; err != nil {
		return err
	}
	if err := db.Where("block_id = ?", id).Delete(&model.ClientTaxBlock{}).Error; err != nil {
		return err
	}
	if err := db.Where("block_id = ?", id).Delete(&model.TaxRate{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.TaxBlock{}).Error
}

func (r *taxBlockRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TaxBlock, error) {
	var block model.TaxBlock
	if err := GetDB(ctx, r.db).First(&block, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *taxBlockRepository) FindByIDWithRates(ctx context.Context, id uuid.UUID) (*model.TaxBlock, error) {
	var block model.TaxBlock
	err := GetDB(ctx, r.db).
		Preload("Rates", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_method ASC, installment ASC")
		}).
		First(&block, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *taxBlockRepository) FindByName(ctx context.Context, name string) (*model.TaxBlock, error) {
	var block model.TaxBlock
	if err := GetDB(ctx, r.db).First(&block, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *taxBlockRepository) List(ctx context.Context, search string, page, limit int) ([]model.TaxBlock, int64, error) {
	var blocks []model.TaxBlock
	var total int64

	query := GetDB(ctx, r.db).Model(&model.TaxBlock{})
	if search != "" {
		query = query.Where("name ILIKE ?", "%"+search+"%")
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("name ASC").Offset(offsetFor(page, limit)).Limit(limit).Find(&blocks).Error; err != nil {
		return nil, 0, err
	}

	return blocks, total, nil
}

// ReplaceRates swaps the block's whole rate table; call inside RunInTx
func (r *taxBlockRepository) ReplaceRates(ctx context.Context, blockID uuid.UUID, rates []model.TaxRate) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("block_id = ?", blockID).Delete(&model.TaxRate{}).Error; err != nil {
		return err
	}
	if len(rates) == 0 {
		return nil
	}
	for i := range rates {
		rates[i].BlockID = blockID
	}
	return db.Create(&rates).Error
}

func (r *taxBlockRepository) DeleteRate(ctx context.Context, blockID, rateID uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Where("id = ? AND block_id = ?", rateID, blockID).Delete(&model.TaxRate{})
	return res.RowsAffected > 0, res.Error
}

func (r *taxBlockRepository) FindRate(ctx context.Context, blockID uuid.UUID, method string, installment int) (*model.TaxRate, error) {
	var rate model.TaxRate
	err := GetDB(ctx, r.db).
		Where("block_id = ? AND payment_method = ? AND installment = ?", blockID, method, installment).
		First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *taxBlockRepository) ListClients(ctx context.Context, blockID uuid.UUID) ([]model.Client, error) {
	var clients []model.Client
	err := GetDB(ctx, r.db).
		Joins("JOIN client_tax_blocks ctb ON ctb.client_id = clients.id").
		Where("ctb.block_id = ?", blockID).
		Order("clients.name ASC").
		Find(&clients).Error
	return clients, err
}
