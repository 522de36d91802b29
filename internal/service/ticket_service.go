package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// ticketTransitions lists the statuses each ticket status may change to; CLOSED is terminal
var ticketTransitions = map[string][]string{
	model.TicketOpen:       {model.TicketInProgress, model.TicketClosed},
	model.TicketInProgress: {model.TicketResolved, model.TicketOpen},
	model.TicketResolved:   {model.TicketClosed, model.TicketOpen},
}

// CanChangeTicketStatus reports whether a ticket may go from one status to another
func CanChangeTicketStatus(from, to string) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validTicketPriority(p string) bool {
	switch p {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
		return true
	}
	return false
}

func validTicketStatus(s string) bool {
	switch s {
	case model.TicketOpen, model.TicketInProgress, model.TicketResolved, model.TicketClosed:
		return true
	}
	return false
}

// --- DTOs ---

type CreateTicketRequest struct {
	ClientID    string `json:"client_id"` // taken from the token for client users
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type AddTicketMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type ChangeTicketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id" binding:"required"`
}

type TicketFilter struct {
	Status     string
	Priority   string
	ClientID   string
	AssignedTo string
	Page       int
	Limit      int
}

type TicketMessageResponse struct {
	ID         string `json:"id"`
	AuthorID   string `json:"author_id,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at"`
}

type TicketResponse struct {
	ID           string                  `json:"id"`
	ClientID     string                  `json:"client_id"`
	ClientName   string                  `json:"client_name,omitempty"`
	Subject      string                  `json:"subject"`
	Description  string                  `json:"description"`
	Priority     string                  `json:"priority"`
	Status       string                  `json:"status"`
	AssignedTo   string                  `json:"assigned_to,omitempty"`
	AssigneeName string                  `json:"assignee_name,omitempty"`
	Messages     []TicketMessageResponse `json:"messages,omitempty"`
	ClosedAt     *string                 `json:"closed_at"`
	CreatedAt    string                  `json:"created_at"`
	UpdatedAt    string                  `json:"updated_at"`
}

// --- Interface ---

type TicketService interface {
	CreateTicket(ctx context.Context, req CreateTicketRequest, userID string) (*TicketResponse, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]TicketResponse, int64, error)
	GetTicket(ctx context.Context, id string) (*TicketResponse, error)
	AddMessage(ctx context.Context, id string, req AddTicketMessageRequest, userID string) (*TicketResponse, error)
	ChangeStatus(ctx context.Context, id string, req ChangeTicketStatusRequest, userID string) (*TicketResponse, error)
	AssignTicket(ctx context.Context, id string, req AssignTicketRequest, userID string) (*TicketResponse, error)
}

type ticketService struct {
	tx      repository.TransactionManager
	tickets repository.TicketRepository
	clients repository.ClientRepository
	users   repository.UserRepository
	audit   AuditService
	events  EventPublisher
	now     func() time.Time
}

func NewTicketService(tx repository.TransactionManager, tickets repository.TicketRepository, clients repository.ClientRepository, users repository.UserRepository, audit AuditService, events EventPublisher) TicketService {
	return &ticketService{
		tx:      tx,
		tickets: tickets,
		clients: clients,
		users:   users,
		audit:   audit,
		events:  publisherOrNoop(events),
		now:     time.Now,
	}
}

// --- Implementation ---

func (s *ticketService) CreateTicket(ctx context.Context, req CreateTicketRequest, userID string) (*TicketResponse, error) {
	clientID, err := parseID(req.ClientID, "client")
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, invalid("subject is required")
	}
	priority := strings.ToUpper(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !validTicketPriority(priority) {
		return nil, invalid("invalid priority %q", req.Priority)
	}

	ticket := model.Ticket{
		ClientID:    clientID,
		Subject:     subject,
		Description: req.Description,
		Priority:    priority,
		Status:      model.TicketOpen,
		OpenedBy:    actorID(userID),
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.clients.FindByID(txCtx, clientID); err != nil {
			if isRecordNotFound(err) {
				return notFound("client not found")
			}
			return fmt.Errorf("failed to fetch client: %w", err)
		}
		if err := s.tickets.Create(txCtx, &ticket); err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionCreateTicket, ticket.ID.String(), ticket.Subject,
			map[string]string{"client_id": req.ClientID, "priority": priority})
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndPublish(ctx, ticket.ID.String())
}

func (s *ticketService) ListTickets(ctx context.Context, filter TicketFilter) ([]TicketResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	if status != "" && !validTicketStatus(status) {
		return nil, 0, invalid("invalid ticket status %q", filter.Status)
	}
	priority := strings.ToUpper(strings.TrimSpace(filter.Priority))
	if priority != "" && !validTicketPriority(priority) {
		return nil, 0, invalid("invalid priority %q", filter.Priority)
	}
	clientID, err := parseOptionalID(filter.ClientID, "client")
	if err != nil {
		return nil, 0, err
	}
	assignedTo, err := parseOptionalID(filter.AssignedTo, "assignee")
	if err != nil {
		return nil, 0, err
	}

	tickets, total, err := s.tickets.List(ctx, repository.TicketFilter{
		Status:     status,
		Priority:   priority,
		ClientID:   clientID,
		AssignedTo: assignedTo,
	}, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch tickets: %w", err)
	}

	res := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		res = append(res, toTicketResponse(t))
	}
	return res, total, nil
}

func (s *ticketService) GetTicket(ctx context.Context, id string) (*TicketResponse, error) {
	ticketID, err := parseID(id, "ticket")
	if err != nil {
		return nil, err
	}
	ticket, err := s.tickets.FindByIDWithMessages(ctx, ticketID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("ticket not found")
		}
		return nil, fmt.Errorf("failed to fetch ticket: %w", err)
	}
	resp := toTicketResponse(*ticket)
	return &resp, nil
}

// AddMessage appends to the conversation; a message on a RESOLVED ticket reopens it
func (s *ticketService) AddMessage(ctx context.Context, id string, req AddTicketMessageRequest, userID string) (*TicketResponse, error) {
	ticketID, err := parseID(id, "ticket")
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, invalid("message body is required")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.findTicket(txCtx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == model.TicketClosed {
			return conflict("ticket is closed")
		}

		msg := model.TicketMessage{TicketID: ticket.ID, AuthorID: actorID(userID), Body: body}
		if err := s.tickets.AddMessage(txCtx, &msg); err != nil {
			return fmt.Errorf("failed to add message: %w", err)
		}

		if ticket.Status == model.TicketResolved {
			ticket.Status = model.TicketOpen
			if err := s.tickets.Update(txCtx, ticket); err != nil {
				return fmt.Errorf("failed to reopen ticket: %w", err)
			}
			return s.audit.Record(txCtx, userID, model.ActionChangeTicketStatus, ticket.ID.String(), ticket.Subject,
				map[string]string{"from": model.TicketResolved, "to": model.TicketOpen, "reason": "new message"})
		}

		// bump updated_at so the ticket floats to the top of the queue
		if err := s.tickets.Update(txCtx, ticket); err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndPublish(ctx, id)
}

func (s *ticketService) ChangeStatus(ctx context.Context, id string, req ChangeTicketStatusRequest, userID string) (*TicketResponse, error) {
	ticketID, err := parseID(id, "ticket")
	if err != nil {
		return nil, err
	}
	to := strings.ToUpper(strings.TrimSpace(req.Status))
	if !validTicketStatus(to) {
		return nil, invalid("invalid ticket status %q", req.Status)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.findTicket(txCtx, ticketID)
		if err != nil {
			return err
		}
		from := ticket.Status
		if !CanChangeTicketStatus(from, to) {
			return conflict("ticket cannot change from %s to %s", from, to)
		}

		ticket.Status = to
		if to == model.TicketClosed {
			closedAt := s.now().UTC()
			ticket.ClosedAt = &closedAt
		}
		if err := s.tickets.Update(txCtx, ticket); err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionChangeTicketStatus, ticket.ID.String(), ticket.Subject,
			map[string]string{"from": from, "to": to})
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndPublish(ctx, id)
}

func (s *ticketService) AssignTicket(ctx context.Context, id string, req AssignTicketRequest, userID string) (*TicketResponse, error) {
	ticketID, err := parseID(id, "ticket")
	if err != nil {
		return nil, err
	}
	assigneeID, err := parseID(req.AssigneeID, "assignee")
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.findTicket(txCtx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == model.TicketClosed {
			return conflict("ticket is closed")
		}

		assignee, err := s.users.GetByID(txCtx, assigneeID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("assignee not found")
			}
			return fmt.Errorf("failed to fetch assignee: %w", err)
		}
		if assignee.Role == model.RoleClient {
			return invalid("tickets cannot be assigned to client users")
		}

		ticket.AssignedTo = &assignee.ID
		if err := s.tickets.Update(txCtx, ticket); err != nil {
			return fmt.Errorf("failed to assign ticket: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionAssignTicket, ticket.ID.String(), ticket.Subject,
			map[string]string{"assignee_id": assignee.ID.String()})
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndPublish(ctx, id)
}

// --- Helpers ---

func (s *ticketService) findTicket(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("ticket not found")
		}
		return nil, fmt.Errorf("failed to fetch ticket: %w", err)
	}
	return ticket, nil
}

func (s *ticketService) reloadAndPublish(ctx context.Context, id string) (*TicketResponse, error) {
	resp, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(EventTicketUpdated, resp)
	return resp, nil
}

func toTicketResponse(t model.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          t.ID.String(),
		ClientID:    t.ClientID.String(),
		Subject:     t.Subject,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
	if t.Client != nil {
		resp.ClientName = t.Client.Name
	}
	if t.AssignedTo != nil {
		resp.AssignedTo = t.AssignedTo.String()
	}
	if t.Assignee != nil {
		resp.AssigneeName = t.Assignee.Username
	}
	if t.ClosedAt != nil {
		closed := t.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &closed
	}
	for _, m := range t.Messages {
		msg := TicketMessageResponse{
			ID:        m.ID.String(),
			Body:      m.Body,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
		if m.AuthorID != nil {
			msg.AuthorID = m.AuthorID.String()
		}
		if m.Author != nil {
			msg.AuthorName = m.Author.Username
		}
		resp.Messages = append(resp.Messages, msg)
	}
	return resp
}
