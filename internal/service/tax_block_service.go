package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateTaxBlockRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateTaxBlockRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// TaxRateInput carries percentages as decimal strings, e.g. "2.49"
type TaxRateInput struct {
	PaymentMethod  string `json:"payment_method" binding:"required"`
	Installment    int    `json:"installment"`
	RootRate       string `json:"root_rate" binding:"required"`
	ForwardingRate string `json:"forwarding_rate"`
	FinalRate      string `json:"final_rate"` // defaults to root_rate + forwarding_rate
}

type UpsertTaxRatesRequest struct {
	Rates []TaxRateInput `json:"rates" binding:"required,dive"`
}

type TaxRateResponse struct {
	ID             string `json:"id"`
	PaymentMethod  string `json:"payment_method"`
	Installment    int    `json:"installment"`
	RootRate       string `json:"root_rate"`
	ForwardingRate string `json:"forwarding_rate"`
	FinalRate      string `json:"final_rate"`
}

type TaxBlockResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Rates       []TaxRateResponse `json:"rates,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// --- Interface ---

type TaxBlockService interface {
	ListBlocks(ctx context.Context, search string, page, limit int) ([]TaxBlockResponse, int64, error)
	GetBlock(ctx context.Context, id string) (*TaxBlockResponse, error)
	CreateBlock(ctx context.Context, req CreateTaxBlockRequest, userID string) (*TaxBlockResponse, error)
	UpdateBlock(ctx context.Context, id string, req UpdateTaxBlockRequest, userID string) (*TaxBlockResponse, error)
	DeleteBlock(ctx context.Context, id string, userID string) error
	UpsertRates(ctx context.Context, id string, req UpsertTaxRatesRequest, userID string) (*TaxBlockResponse, error)
	DeleteRate(ctx context.Context, blockID, rateID string, userID string) error
	ListBlockClients(ctx context.Context, id string) ([]ClientResponse, error)
	// FeeRate looks up the rate charged by a block for a method/installment pair
	FeeRate(ctx context.Context, blockID uuid.UUID, method string, installment int) (*model.TaxRate, error)
}

type taxBlockService struct {
	tx     repository.TransactionManager
	blocks repository.TaxBlockRepository
	audit  AuditService
}

func NewTaxBlockService(tx repository.TransactionManager, blocks repository.TaxBlockRepository, audit AuditService) TaxBlockService {
	return &taxBlockService{tx: tx, blocks: blocks, audit: audit}
}

// --- Implementation ---

func (s *taxBlockService) ListBlocks(ctx context.Context, search string, page, limit int) ([]TaxBlockResponse, int64, error) {
	blocks, total, err := s.blocks.List(ctx, strings.TrimSpace(search), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch tax blocks: %w", err)
	}

	res := make([]TaxBlockResponse, 0, len(blocks))
	for _, b := range blocks {
		res = append(res, toTaxBlockResponse(b))
	}
	return res, total, nil
}

func (s *taxBlockService) GetBlock(ctx context.Context, id string) (*TaxBlockResponse, error) {
	blockID, err := parseID(id, "tax block")
	if err != nil {
		return nil, err
	}

	block, err := s.blocks.FindByIDWithRates(ctx, blockID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("tax block not found")
		}
		return nil, fmt.Errorf("failed to fetch tax block: %w", err)
	}

	resp := toTaxBlockResponse(*block)
	return &resp, nil
}

func (s *taxBlockService) CreateBlock(ctx context.Context, req CreateTaxBlockRequest, userID string) (*TaxBlockResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("tax block name is required")
	}

	block := model.TaxBlock{Name: name, Description: req.Description}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.blocks.FindByName(txCtx, name); err == nil {
			return conflict("a tax block named %q already exists", name)
		}
		if err := s.blocks.Create(txCtx, &block); err != nil {
			if isDuplicateKey(err) {
				return conflict("a tax block named %q already exists", name)
			}
			return fmt.Errorf("failed to create tax block: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionCreateTaxBlock, block.ID.String(), block.Name, req)
	})
	if err != nil {
		return nil, err
	}

	resp := toTaxBlockResponse(block)
	return &resp, nil
}

func (s *taxBlockService) UpdateBlock(ctx context.Context, id string, req UpdateTaxBlockRequest, userID string) (*TaxBlockResponse, error) {
	blockID, err := parseID(id, "tax block")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("tax block name is required")
	}

	var block *model.TaxBlock
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		block, findErr = s.blocks.FindByID(txCtx, blockID)
		if findErr != nil {
			if isRecordNotFound(findErr) {
				return notFound("tax block not found")
			}
			return fmt.Errorf("failed to fetch tax block: %w", findErr)
		}

		if name != block.Name {
			if other, err := s.blocks.FindByName(txCtx, name); err == nil && other.ID != block.ID {
				return conflict("a tax block named %q already exists", name)
			}
		}

		block.Name = name
		block.Description = req.Description
		if err := s.blocks.Update(txCtx, block); err != nil {
			return fmt.Errorf("failed to update tax block: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionUpdateTaxBlock, block.ID.String(), block.Name, req)
	})
	if err != nil {
		return nil, err
	}

	return s.GetBlock(ctx, block.ID.String())
}

// DeleteBlock removes the block together with its rates, associations and transfers
func (s *taxBlockService) DeleteBlock(ctx context.Context, id string, userID string) error {
	blockID, err := parseID(id, "tax block")
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		block, err := s.blocks.FindByID(txCtx, blockID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("tax block not found")
			}
			return fmt.Errorf("failed to fetch tax block: %w", err)
		}

		if err := s.blocks.Delete(txCtx, blockID); err != nil {
			return fmt.Errorf("failed to delete tax block: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionDeleteTaxBlock, block.ID.String(), block.Name, map[string]string{"deleted_id": id})
	})
}

// UpsertRates replaces the block's rate table with the validated payload
func (s *taxBlockService) UpsertRates(ctx context.Context, id string, req UpsertTaxRatesRequest, userID string) (*TaxBlockResponse, error) {
	blockID, err := parseID(id, "tax block")
	if err != nil {
		return nil, err
	}

	rates, err := BuildTaxRates(req.Rates)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		block, err := s.blocks.FindByID(txCtx, blockID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("tax block not found")
			}
			return fmt.Errorf("failed to fetch tax block: %w", err)
		}

		if err := s.blocks.ReplaceRates(txCtx, blockID, rates); err != nil {
			return fmt.Errorf("failed to save tax rates: %w", err)
		}
		return s.audit.Record(txCtx, userID, model.ActionUpsertTaxRates, block.ID.String(), block.Name,
			map[string]interface{}{"rate_count": len(rates)})
	})
	if err != nil {
		return nil, err
	}

	return s.GetBlock(ctx, id)
}

func (s *taxBlockService) DeleteRate(ctx context.Context, blockID, rateID string, userID string) error {
	bID, err := parseID(blockID, "tax block")
	if err != nil {
		return err
	}
	rID, err := parseID(rateID, "tax rate")
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		deleted, err := s.blocks.DeleteRate(txCtx, bID, rID)
		if err != nil {
			return fmt.Errorf("failed to delete tax rate: %w", err)
		}
		if !deleted {
			return notFound("tax rate not found")
		}
		return s.audit.Record(txCtx, userID, model.ActionDeleteTaxRate, rID.String(), "",
			map[string]string{"block_id": blockID})
	})
}

func (s *taxBlockService) ListBlockClients(ctx context.Context, id string) ([]ClientResponse, error) {
	blockID, err := parseID(id, "tax block")
	if err != nil {
		return nil, err
	}
	if _, err := s.blocks.FindByID(ctx, blockID); err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("tax block not found")
		}
		return nil, fmt.Errorf("failed to fetch tax block: %w", err)
	}

	clients, err := s.blocks.ListClients(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block clients: %w", err)
	}

	res := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		res = append(res, toClientResponse(c))
	}
	return res, nil
}

func (s *taxBlockService) FeeRate(ctx context.Context, blockID uuid.UUID, method string, installment int) (*model.TaxRate, error) {
	rate, err := s.blocks.FindRate(ctx, blockID, method, installment)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, invalid("tax block has no rate for %s in %dx", method, installment)
		}
		return nil, fmt.Errorf("failed to fetch tax rate: %w", err)
	}
	return rate, nil
}

// --- Helpers ---

var hundred = decimal.NewFromInt(100)

// ValidPaymentMethod reports whether method is one of CREDIT, DEBIT or PIX
func ValidPaymentMethod(method string) bool {
	switch method {
	case model.PaymentMethodCredit, model.PaymentMethodDebit, model.PaymentMethodPix:
		return true
	}
	return false
}

// normalizeInstallment applies the installment bounds of a payment method; 0 means "not given"
func normalizeInstallment(method string, installment int) (int, error) {
	if installment == 0 {
		installment = model.MinInstallments
	}
	if method == model.PaymentMethodCredit {
		if installment < model.MinInstallments || installment > model.MaxCreditInstallments {
			return 0, invalid("credit installments must be between %d and %d", model.MinInstallments, model.MaxCreditInstallments)
		}
		return installment, nil
	}
	if installment != model.MinInstallments {
		return 0, invalid("%s payments are always settled in a single installment", method)
	}
	return installment, nil
}

func parsePercentage(raw, field string, required bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return decimal.Zero, invalid("%s is required", field)
		}
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid("invalid %s value %q", field, raw)
	}
	if v.IsNegative() || v.GreaterThan(hundred) {
		return decimal.Zero, invalid("%s must be between 0 and 100", field)
	}
	return v, nil
}

// BuildTaxRates validates a rate payload and converts it into model rows.
// Duplicate (method, installment) pairs are rejected.
func BuildTaxRates(inputs []TaxRateInput) ([]model.TaxRate, error) {
	seen := make(map[string]bool, len(inputs))
	rates := make([]model.TaxRate, 0, len(inputs))

	for i, in := range inputs {
		method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
		if !ValidPaymentMethod(method) {
			return nil, invalid("rate %d: invalid payment method %q", i+1, in.PaymentMethod)
		}

		installment, err := normalizeInstallment(method, in.Installment)
		if err != nil {
			return nil, invalid("rate %d: %s", i+1, err.Error())
		}

		key := fmt.Sprintf("%s/%d", method, installment)
		if seen[key] {
			return nil, invalid("rate %d: duplicate rate for %s in %dx", i+1, method, installment)
		}
		seen[key] = true

		root, err := parsePercentage(in.RootRate, "root_rate", true)
		if err != nil {
			return nil, invalid("rate %d: %s", i+1, err.Error())
		}
		forwarding, err := parsePercentage(in.ForwardingRate, "forwarding_rate", false)
		if err != nil {
			return nil, invalid("rate %d: %s", i+1, err.Error())
		}

		final := root.Add(forwarding)
		if strings.TrimSpace(in.FinalRate) != "" {
			if final, err = parsePercentage(in.FinalRate, "final_rate", true); err != nil {
				return nil, invalid("rate %d: %s", i+1, err.Error())
			}
		} else if final.GreaterThan(hundred) {
			return nil, invalid("rate %d: final_rate must be between 0 and 100", i+1)
		}

		rates = append(rates, model.TaxRate{
			PaymentMethod:  method,
			Installment:    installment,
			RootRate:       root,
			ForwardingRate: forwarding,
			FinalRate:      final,
		})
	}

	return rates, nil
}

func toTaxRateResponse(r model.TaxRate) TaxRateResponse {
	return TaxRateResponse{
		ID:             r.ID.String(),
		PaymentMethod:  r.PaymentMethod,
		Installment:    r.Installment,
		RootRate:       r.RootRate.StringFixed(4),
		ForwardingRate: r.ForwardingRate.StringFixed(4),
		FinalRate:      r.FinalRate.StringFixed(4),
	}
}

func toTaxBlockResponse(b model.TaxBlock) TaxBlockResponse {
	resp := TaxBlockResponse{
		ID:          b.ID.String(),
		Name:        b.Name,
		Description: b.Description,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   b.UpdatedAt.Format(time.RFC3339),
	}
	if len(b.Rates) > 0 {
		resp.Rates = make([]TaxRateResponse, 0, len(b.Rates))
		for _, r := range b.Rates {
			resp.Rates = append(resp.Rates, toTaxRateResponse(r))
		}
	}
	return resp
}
