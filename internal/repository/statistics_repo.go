package repository

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleTotals is the headline row of the dashboard
type SaleTotals struct {
	GrossAmount decimal.Decimal
	FeeAmount   decimal.Decimal
	NetAmount   decimal.Decimal
	SaleCount   int64
}

type StatisticsRepository interface {
	GetSaleTotals(ctx context.Context, start, end time.Time) (SaleTotals, error)
	GetTotalsByPaymentMethod(ctx context.Context, start, end time.Time) ([]model.PaymentMethodTotal, error)
	GetTopClients(ctx context.Context, start, end time.Time, limit int) ([]model.ClientRanking, error)
	CountTicketsByStatus(ctx context.Context, statuses ...string) (int64, error)
	CountApprovalsByStatus(ctx context.Context, status string) (int64, error)
	// GetSalesSeries groups sales by DATE_TRUNC(groupBy, sold_at); groupBy is day, week or month
	GetSalesSeries(ctx context.Context, groupBy string, start, end time.Time) ([]model.SalesPeriod, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) GetSaleTotals(ctx context.Context, start, end time.Time) (SaleTotals, error) {
	var totals SaleTotals
	err := GetDB(ctx, r.db).Table("sales").
		Select(`COALESCE(SUM(gross_amount), 0) AS gross_amount,
			COALESCE(SUM(fee_amount), 0) AS fee_amount,
			COALESCE(SUM(net_amount), 0) AS net_amount,
			COUNT(*) AS sale_count`).
		Where("sold_at >= ? AND sold_at < ?", start, end).
		Scan(&totals).Error
	if err != nil {
		return SaleTotals{}, fmt.Errorf("failed to query sale totals: %w", err)
	}
	return totals, nil
}

func (r *statisticsRepository) GetTotalsByPaymentMethod(ctx context.Context, start, end time.Time) ([]model.PaymentMethodTotal, error) {
	var rows []model.PaymentMethodTotal
	err := GetDB(ctx, r.db).Table("sales").
		Select("payment_method, COUNT(*) AS sale_count, SUM(gross_amount) AS gross_amount, SUM(fee_amount) AS fee_amount").
		Where("sold_at >= ? AND sold_at < ?", start, end).
		Group("payment_method").
		Order("payment_method").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query payment method totals: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) GetTopClients(ctx context.Context, start, end time.Time, limit int) ([]model.ClientRanking, error) {
	var rankings []model.ClientRanking
	err := GetDB(ctx, r.db).Table("sales").
		Select("clients.id AS client_id, clients.name AS client_name, COUNT(sales.id) AS sale_count, SUM(sales.gross_amount) AS gross_amount, SUM(sales.fee_amount) AS fee_amount").
		Joins("JOIN clients ON clients.id = sales.client_id").
		Where("sales.sold_at >= ? AND sales.sold_at < ?", start, end).
		Group("clients.id, clients.name").
		Order("gross_amount DESC").
		Limit(limit).
		Scan(&rankings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query top clients: %w", err)
	}
	return rankings, nil
}

func (r *statisticsRepository) CountTicketsByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Ticket{}).Where("status IN ?", statuses).Count(&count).Error
	return count, err
}

func (r *statisticsRepository) CountApprovalsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *statisticsRepository) GetSalesSeries(ctx context.Context, groupBy string, start, end time.Time) ([]model.SalesPeriod, error) {
	query := `
		SELECT
			TO_CHAR(DATE_TRUNC($1, s.sold_at), 'YYYY-MM-DD') AS period,
			COUNT(*) AS sale_count,
			COALESCE(SUM(s.gross_amount), 0) AS gross_amount,
			COALESCE(SUM(s.fee_amount), 0) AS fee_amount,
			COALESCE(SUM(s.net_amount), 0) AS net_amount
		FROM sales s
		WHERE s.sold_at >= $2 AND s.sold_at < $3
		GROUP BY DATE_TRUNC($1, s.sold_at)
		ORDER BY period
	`

	var rows []model.SalesPeriod
	if err := GetDB(ctx, r.db).Raw(query, groupBy, start, end).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query sales series: %w", err)
	}
	return rows, nil
}
