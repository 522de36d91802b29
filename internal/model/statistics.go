package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardStatistics aggregates sales and operational counters for a date range
type DashboardStatistics struct {
	TotalGross       decimal.Decimal      `json:"total_gross"`
	TotalFees        decimal.Decimal      `json:"total_fees"`
	TotalNet         decimal.Decimal      `json:"total_net"`
	SaleCount        int64                `json:"sale_count"`
	ByPaymentMethod  []PaymentMethodTotal `json:"by_payment_method"`
	TopClients       []ClientRanking      `json:"top_clients"`
	MachinesByStatus []MachineStatusCount `json:"machines_by_status"`
	OpenTickets      int64                `json:"open_tickets"`
	PendingApprovals int64                `json:"pending_approvals"`
	RangeStart       time.Time            `json:"range_start"`
	RangeEnd         time.Time            `json:"range_end"`
}

// PaymentMethodTotal sums sales of one payment method
type PaymentMethodTotal struct {
	PaymentMethod string          `json:"payment_method"`
	SaleCount     int64           `json:"sale_count"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
}

// ClientRanking represents a client ranked by gross sales
type ClientRanking struct {
	ClientID    string          `json:"client_id"`
	ClientName  string          `json:"client_name"`
	SaleCount   int64           `json:"sale_count"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

// SalesPeriod is one bucket of the sales time series
type SalesPeriod struct {
	Period      string          `json:"period"`
	SaleCount   int64           `json:"sale_count"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}
