package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MachineFilter narrows the machine listing
type MachineFilter struct {
	Status   string
	ClientID *uuid.UUID
	Search   string
}

type MachineRepository interface {
	Create(ctx context.Context, machine *model.Machine) error
	Update(ctx context.Context, machine *model.Machine) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Machine, error)
	FindBySerial(ctx context.Context, serial string) (*model.Machine, error)
	LockByID(ctx context.Context, id uuid.UUID) (*model.Machine, error)
	List(ctx context.Context, filter MachineFilter, page, limit int) ([]model.Machine, int64, error)
	CountByStatus(ctx context.Context) ([]model.MachineStatusCount, error)

	CreateMovement(ctx context.Context, movement *model.MachineMovement) error
	ListMovements(ctx context.Context, machineID uuid.UUID) ([]model.MachineMovement, error)
}

type machineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) MachineRepository {
	return &machineRepository{db: db}
}

func (r *machineRepository) Create(ctx context.Context, machine *model.Machine) error {
	return GetDB(ctx, r.db).Omit("Client").Create(machine).Error
}

func (r *machineRepository) Update(ctx context.Context, machine *model.Machine) error {
	return GetDB(ctx, r.db).Omit("Client").Save(machine).Error
}

func (r *machineRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Machine{}).Error
}

func (r *machineRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Machine, error) {
	var machine model.Machine
	if err := GetDB(ctx, r.db).Preload("Client").First(&machine, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

func (r *machineRepository) FindBySerial(ctx context.Context, serial string) (*model.Machine, error) {
	var machine model.Machine
	if err := GetDB(ctx, r.db).First(&machine, "serial_number = ?", serial).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

func (r *machineRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Machine, error) {
	var machine model.Machine
	if err := forUpdate(GetDB(ctx, r.db)).First(&machine, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

func (r *machineRepository) List(ctx context.Context, filter MachineFilter, page, limit int) ([]model.Machine, int64, error) {
	var machines []model.Machine
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Machine{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("serial_number ILIKE ? OR model ILIKE ? OR location ILIKE ?", like, like, like)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("Client").Order("created_at DESC").Offset(offsetFor(page, limit)).Limit(limit).Find(&machines).Error; err != nil {
		return nil, 0, err
	}

	return machines, total, nil
}

func (r *machineRepository) CountByStatus(ctx context.Context) ([]model.MachineStatusCount, error) {
	var counts []model.MachineStatusCount
	err := GetDB(ctx, r.db).Model(&model.Machine{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&counts).Error
	return counts, err
}

func (r *machineRepository) CreateMovement(ctx context.Context, movement *model.MachineMovement) error {
	return GetDB(ctx, r.db).Create(movement).Error
}

func (r *machineRepository) ListMovements(ctx context.Context, machineID uuid.UUID) ([]model.MachineMovement, error) {
	var movements []model.MachineMovement
	err := GetDB(ctx, r.db).Where("machine_id = ?", machineID).Order("created_at DESC").Find(&movements).Error
	return movements, err
}
