package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// --- DTOs ---

type CreateClientRequest struct {
	Name      string `json:"name" binding:"required"`
	Document  string `json:"document" binding:"required"` // CPF or CNPJ, punctuation allowed
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	PartnerID string `json:"partner_id"`
}

type UpdateClientRequest struct {
	Name      string `json:"name" binding:"required"`
	Document  string `json:"document" binding:"required"`
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	PartnerID string `json:"partner_id"`
	IsActive  *bool  `json:"is_active"`
}

type ClientFilter struct {
	Search    string
	PartnerID string
	IsActive  *bool
	Page      int
	Limit     int
}

type ClientResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Document    string `json:"document"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	PartnerID   string `json:"partner_id,omitempty"`
	PartnerName string `json:"partner_name,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type ClientService interface {
	ListClients(ctx context.Context, filter ClientFilter) ([]ClientResponse, int64, error)
	GetClient(ctx context.Context, id string) (*ClientResponse, error)
	CreateClient(ctx context.Context, req CreateClientRequest, userID string) (*ClientResponse, error)
	UpdateClient(ctx context.Context, id string, req UpdateClientRequest, userID string) (*ClientResponse, error)
	DeleteClient(ctx context.Context, id string, userID string) error
}

type clientService struct {
	tx       repository.TransactionManager
	clients  repository.ClientRepository
	partners repository.PartnerRepository
	audit    AuditService
}

func NewClientService(tx repository.TransactionManager, clients repository.ClientRepository, partners repository.PartnerRepository, audit AuditService) ClientService {
	return &clientService{tx: tx, clients: clients, partners: partners, audit: audit}
}

// --- Implementation ---

func (s *clientService) ListClients(ctx context.Context, filter ClientFilter) ([]ClientResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	partnerID, err := parseOptionalID(filter.PartnerID, "partner")
	if err != nil {
		return nil, 0, err
	}

	clients, total, err := s.clients.List(ctx, repository.ClientFilter{
		Search:    strings.TrimSpace(filter.Search),
		PartnerID: partnerID,
		IsActive:  filter.IsActive,
	}, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch clients: %w", err)
	}

	res := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		res = append(res, toClientResponse(c))
	}
	return res, total, nil
}

func (s *clientService) GetClient(ctx context.Context, id string) (*ClientResponse, error) {
	clientID, err := parseID(id, "client")
	if err != nil {
		return nil, err
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("client not found")
		}
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}

	resp := toClientResponse(*client)
	return &resp, nil
}

func (s *clientService) CreateClient(ctx context.Context, req CreateClientRequest, userID string) (*ClientResponse, error) {
	document, err := NormalizeDocument(req.Document)
	if err != nil {
		return nil, err
	}
	partnerID, err := parseOptionalID(req.PartnerID, "partner")
	if err != nil {
		return nil, err
	}

	client := model.Client{
		Name:      strings.TrimSpace(req.Name),
		Document:  document,
		Email:     strings.TrimSpace(req.Email),
		Phone:     req.Phone,
		Address:   req.Address,
		PartnerID: partnerID,
		IsActive:  true,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if partnerID != nil {
			if _, err := s.partners.FindByID(txCtx, *partnerID); err != nil {
				if isRecordNotFound(err) {
					return notFound("partner not found")
				}
				return fmt.Errorf("failed to fetch partner: %w", err)
			}
		}
		if _, err := s.clients.FindByDocument(txCtx, document); err == nil {
			return conflict("a client with document %s already exists", document)
		}

		if err := s.clients.Create(txCtx, &client); err != nil {
			if isDuplicateKey(err) {
				return conflict("a client with document %s already exists", document)
			}
			return fmt.Errorf("failed to create client: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionCreateClient, client.ID.String(), client.Name, req)
	})
	if err != nil {
		return nil, err
	}

	return s.GetClient(ctx, client.ID.String())
}

func (s *clientService) UpdateClient(ctx context.Context, id string, req UpdateClientRequest, userID string) (*ClientResponse, error) {
	clientID, err := parseID(id, "client")
	if err != nil {
		return nil, err
	}
	document, err := NormalizeDocument(req.Document)
	if err != nil {
		return nil, err
	}
	partnerID, err := parseOptionalID(req.PartnerID, "partner")
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clients.FindByID(txCtx, clientID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("client not found")
			}
			return fmt.Errorf("failed to fetch client: %w", err)
		}

		if document != client.Document {
			if other, err := s.clients.FindByDocument(txCtx, document); err == nil && other.ID != client.ID {
				return conflict("a client with document %s already exists", document)
			}
		}
		if partnerID != nil {
			if _, err := s.partners.FindByID(txCtx, *partnerID); err != nil {
				if isRecordNotFound(err) {
					return notFound("partner not found")
				}
				return fmt.Errorf("failed to fetch partner: %w", err)
			}
		}

		client.Name = strings.TrimSpace(req.Name)
		client.Document = document
		client.Email = strings.TrimSpace(req.Email)
		client.Phone = req.Phone
		client.Address = req.Address
		client.PartnerID = partnerID
		client.Partner = nil
		if req.IsActive != nil {
			client.IsActive = *req.IsActive
		}

		if err := s.clients.Update(txCtx, client); err != nil {
			if isDuplicateKey(err) {
				return conflict("a client with document %s already exists", document)
			}
			return fmt.Errorf("failed to update client: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionUpdateClient, client.ID.String(), client.Name, req)
	})
	if err != nil {
		return nil, err
	}

	return s.GetClient(ctx, id)
}

// DeleteClient cascades to the client's fee-block association and transfers
func (s *clientService) DeleteClient(ctx context.Context, id string, userID string) error {
	clientID, err := parseID(id, "client")
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clients.FindByID(txCtx, clientID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("client not found")
			}
			return fmt.Errorf("failed to fetch client: %w", err)
		}

		if err := s.clients.Delete(txCtx, clientID); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionDeleteClient, client.ID.String(), client.Name,
			map[string]string{"document": client.Document})
	})
}

// --- Helpers ---

// NormalizeDocument strips punctuation from a CPF (11 digits) or CNPJ (14 digits)
func NormalizeDocument(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '/' || unicode.IsSpace(r):
		default:
			return "", invalid("document may only contain digits and . - / separators")
		}
	}

	digits := b.String()
	if len(digits) != 11 && len(digits) != 14 {
		return "", invalid("document must have 11 (CPF) or 14 (CNPJ) digits")
	}
	return digits, nil
}

func toClientResponse(c model.Client) ClientResponse {
	resp := ClientResponse{
		ID:        c.ID.String(),
		Name:      c.Name,
		Document:  c.Document,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.PartnerID != nil {
		resp.PartnerID = c.PartnerID.String()
	}
	if c.Partner != nil {
		resp.PartnerName = c.Partner.Name
	}
	return resp
}
