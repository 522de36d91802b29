package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// --- DTOs ---

type RecordSaleRequest struct {
	ClientID      string     `json:"client_id" binding:"required"`
	MachineID     string     `json:"machine_id"`
	PaymentMethod string     `json:"payment_method" binding:"required"`
	Installments  int        `json:"installments"`
	GrossAmount   string     `json:"gross_amount" binding:"required"` // decimal string, e.g. "150.00"
	SoldAt        *time.Time `json:"sold_at"`                         // defaults to now
}

type SaleFilter struct {
	ClientID      string
	PartnerID     string
	PaymentMethod string
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int
}

type SaleResponse struct {
	ID            string `json:"id"`
	ClientID      string `json:"client_id"`
	ClientName    string `json:"client_name,omitempty"`
	MachineID     string `json:"machine_id,omitempty"`
	BlockID       string `json:"block_id"`
	PaymentMethod string `json:"payment_method"`
	Installments  int    `json:"installments"`
	GrossAmount   string `json:"gross_amount"`
	FeeRate       string `json:"fee_rate"`
	FeeAmount     string `json:"fee_amount"`
	NetAmount     string `json:"net_amount"`
	SoldAt        string `json:"sold_at"`
}

// BlockResolver finds the fee block governing a client's sale
type BlockResolver interface {
	EffectiveBlock(ctx context.Context, clientID uuid.UUID, at time.Time) (uuid.UUID, error)
}

// RateLookup finds the rate a block charges for a method/installment pair
type RateLookup interface {
	FeeRate(ctx context.Context, blockID uuid.UUID, method string, installment int) (*model.TaxRate, error)
}

// --- Interface ---

type SaleService interface {
	RecordSale(ctx context.Context, req RecordSaleRequest, userID string) (*SaleResponse, error)
	GetSale(ctx context.Context, id string) (*SaleResponse, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]SaleResponse, int64, error)
	// ExportSales writes every sale matching filter as an xlsx workbook
	ExportSales(ctx context.Context, filter SaleFilter, w io.Writer) error
}

type saleService struct {
	tx       repository.TransactionManager
	sales    repository.SaleRepository
	clients  repository.ClientRepository
	machines repository.MachineRepository
	blocks   BlockResolver
	rates    RateLookup
	audit    AuditService
	metrics  *metrics.Metrics
	events   EventPublisher
	now      func() time.Time
}

func NewSaleService(
	tx repository.TransactionManager,
	sales repository.SaleRepository,
	clients repository.ClientRepository,
	machines repository.MachineRepository,
	blocks BlockResolver,
	rates RateLookup,
	audit AuditService,
	m *metrics.Metrics,
	events EventPublisher,
) SaleService {
	return &saleService{
		tx:       tx,
		sales:    sales,
		clients:  clients,
		machines: machines,
		blocks:   blocks,
		rates:    rates,
		audit:    audit,
		metrics:  m,
		events:   publisherOrNoop(events),
		now:      time.Now,
	}
}

// --- Implementation ---

// RecordSale prices a sale with the rate of the client's effective block at sold_at
func (s *saleService) RecordSale(ctx context.Context, req RecordSaleRequest, userID string) (*SaleResponse, error) {
	clientID, err := parseID(req.ClientID, "client")
	if err != nil {
		return nil, err
	}
	machineID, err := parseOptionalID(req.MachineID, "machine")
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if !ValidPaymentMethod(method) {
		return nil, invalid("invalid payment method %q", req.PaymentMethod)
	}
	installments, err := normalizeInstallment(method, req.Installments)
	if err != nil {
		return nil, err
	}

	gross, err := decimal.NewFromString(strings.TrimSpace(req.GrossAmount))
	if err != nil {
		return nil, invalid("invalid gross_amount value %q", req.GrossAmount)
	}
	gross = gross.Round(2)
	if !gross.IsPositive() {
		return nil, invalid("gross_amount must be greater than zero")
	}

	soldAt := s.now().UTC()
	if req.SoldAt != nil {
		soldAt = req.SoldAt.UTC()
	}

	var sale model.Sale
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clients.FindByID(txCtx, clientID)
		if err != nil {
			if isRecordNotFound(err) {
				return notFound("client not found")
			}
			return fmt.Errorf("failed to fetch client: %w", err)
		}
		if !client.IsActive {
			return invalid("client is inactive")
		}

		if machineID != nil {
			machine, err := s.machines.FindByID(txCtx, *machineID)
			if err != nil {
				if isRecordNotFound(err) {
					return notFound("machine not found")
				}
				return fmt.Errorf("failed to fetch machine: %w", err)
			}
			if machine.ClientID == nil || *machine.ClientID != clientID {
				return invalid("machine %s is not assigned to this client", machine.SerialNumber)
			}
		}

		blockID, err := s.blocks.EffectiveBlock(txCtx, clientID, soldAt)
		if err != nil {
			return err
		}
		rate, err := s.rates.FeeRate(txCtx, blockID, method, installments)
		if err != nil {
			return err
		}

		fee, net := ComputeFee(gross, rate.FinalRate)
		sale = model.Sale{
			ClientID:      clientID,
			MachineID:     machineID,
			BlockID:       blockID,
			PaymentMethod: method,
			Installments:  installments,
			GrossAmount:   gross,
			FeeRate:       rate.FinalRate,
			FeeAmount:     fee,
			NetAmount:     net,
			SoldAt:        soldAt,
		}
		if err := s.sales.Create(txCtx, &sale); err != nil {
			return fmt.Errorf("failed to record sale: %w", err)
		}

		return s.audit.Record(txCtx, userID, model.ActionRecordSale, sale.ID.String(), client.Name, map[string]string{
			"gross_amount": gross.StringFixed(2),
			"fee_amount":   fee.StringFixed(2),
			"block_id":     blockID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	fee, _ := sale.FeeAmount.Float64()
	s.metrics.ObserveSale(sale.PaymentMethod, fee)

	resp := toSaleResponse(sale)
	s.events.Publish(EventSaleRecorded, resp)
	return &resp, nil
}

func (s *saleService) GetSale(ctx context.Context, id string) (*SaleResponse, error) {
	saleID, err := parseID(id, "sale")
	if err != nil {
		return nil, err
	}
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("sale not found")
		}
		return nil, fmt.Errorf("failed to fetch sale: %w", err)
	}
	resp := toSaleResponse(*sale)
	return &resp, nil
}

func (s *saleService) ListSales(ctx context.Context, filter SaleFilter) ([]SaleResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	repoFilter, err := toRepoSaleFilter(filter)
	if err != nil {
		return nil, 0, err
	}

	sales, total, err := s.sales.List(ctx, repoFilter, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sales: %w", err)
	}

	res := make([]SaleResponse, 0, len(sales))
	for _, sale := range sales {
		res = append(res, toSaleResponse(sale))
	}
	return res, total, nil
}

var saleExportHeaders = []string{
	"Sold at", "Client", "Document", "Payment method", "Installments",
	"Gross amount", "Fee rate (%)", "Fee amount", "Net amount",
}

func (s *saleService) ExportSales(ctx context.Context, filter SaleFilter, w io.Writer) error {
	repoFilter, err := toRepoSaleFilter(filter)
	if err != nil {
		return err
	}
	sales, err := s.sales.ListAll(ctx, repoFilter)
	if err != nil {
		return fmt.Errorf("failed to fetch sales: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sales"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, header := range saleExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	for i, sale := range sales {
		row := i + 2
		clientName, document := "", ""
		if sale.Client != nil {
			clientName = sale.Client.Name
			document = sale.Client.Document
		}
		values := []interface{}{
			sale.SoldAt.Format("2006-01-02 15:04:05"),
			clientName,
			document,
			sale.PaymentMethod,
			sale.Installments,
			sale.GrossAmount.InexactFloat64(),
			sale.FeeRate.InexactFloat64(),
			sale.FeeAmount.InexactFloat64(),
			sale.NetAmount.InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}

// --- Helpers ---

// ComputeFee returns fee = gross * rate / 100 rounded to cents, and net = gross - fee
func ComputeFee(gross, ratePercent decimal.Decimal) (fee, net decimal.Decimal) {
	fee = gross.Mul(ratePercent).Div(hundred).Round(2)
	return fee, gross.Sub(fee)
}

func toRepoSaleFilter(filter SaleFilter) (repository.SaleFilter, error) {
	clientID, err := parseOptionalID(filter.ClientID, "client")
	if err != nil {
		return repository.SaleFilter{}, err
	}
	partnerID, err := parseOptionalID(filter.PartnerID, "partner")
	if err != nil {
		return repository.SaleFilter{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(filter.PaymentMethod))
	if method != "" && !ValidPaymentMethod(method) {
		return repository.SaleFilter{}, invalid("invalid payment method %q", filter.PaymentMethod)
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return repository.SaleFilter{}, invalid("end date must be after start date")
	}

	return repository.SaleFilter{
		ClientID:      clientID,
		PartnerID:     partnerID,
		PaymentMethod: method,
		From:          filter.From,
		To:            filter.To,
	}, nil
}

func toSaleResponse(s model.Sale) SaleResponse {
	resp := SaleResponse{
		ID:            s.ID.String(),
		ClientID:      s.ClientID.String(),
		BlockID:       s.BlockID.String(),
		PaymentMethod: s.PaymentMethod,
		Installments:  s.Installments,
		GrossAmount:   s.GrossAmount.StringFixed(2),
		FeeRate:       s.FeeRate.StringFixed(4),
		FeeAmount:     s.FeeAmount.StringFixed(2),
		NetAmount:     s.NetAmount.StringFixed(2),
		SoldAt:        s.SoldAt.Format(time.RFC3339),
	}
	if s.Client != nil {
		resp.ClientName = s.Client.Name
	}
	if s.MachineID != nil {
		resp.MachineID = s.MachineID.String()
	}
	return resp
}
