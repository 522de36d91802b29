package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketFilter narrows the ticket listing
type TicketFilter struct {
	Status     string
	Priority   string
	ClientID   *uuid.UUID
	AssignedTo *uuid.UUID
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *model.Ticket) error
	Update(ctx context.Context, ticket *model.Ticket) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Ticket, error)
	FindByIDWithMessages(ctx context.Context, id uuid.UUID) (*model.Ticket, error)
	List(ctx context.Context, filter TicketFilter, page, limit int) ([]model.Ticket, int64, error)
	AddMessage(ctx context.Context, msg *model.TicketMessage) error
}

type ticketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *model.Ticket) error {
	return GetDB(ctx, r.db).Omit("Client", "Assignee", "Messages").Create(ticket).Error
}

func (r *ticketRepository) Update(ctx context.Context, ticket *model.Ticket) error {
	return GetDB(ctx, r.db).Omit("Client", "Assignee", "Messages").Save(ticket).Error
}

func (r *ticketRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	var ticket model.Ticket
	if err := GetDB(ctx, r.db).First(&ticket, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) FindByIDWithMessages(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	var ticket model.Ticket
	err := GetDB(ctx, r.db).
		Preload("Client").
		Preload("Assignee").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Messages.Author").
		First(&ticket, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter, page, limit int) ([]model.Ticket, int64, error) {
	var tickets []model.Ticket
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Ticket{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("Client").Preload("Assignee").Order("updated_at DESC").Offset(offsetFor(page, limit)).Limit(limit).Find(&tickets).Error; err != nil {
		return nil, 0, err
	}

	return tickets, total, nil
}

func (r *ticketRepository) AddMessage(ctx context.Context, msg *model.TicketMessage) error {
	return GetDB(ctx, r.db).Omit("Author").Create(msg).Error
}
