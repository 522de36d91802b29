package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatistics(t *testing.T) {
	stats := &fakeStats{
		totals: repository.SaleTotals{
			GrossAmount: decimal.RequireFromString("1000"),
			FeeAmount:   decimal.RequireFromString("25"),
			NetAmount:   decimal.RequireFromString("975"),
			SaleCount:   12,
		},
		openTickets: 3,
		pending:     2,
	}
	machines := newFakeMachines()
	machines.add("A", model.MachineInstalled, nil)
	svc := NewStatisticsService(stats, machines)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	got, err := svc.GetStatistics(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, "1000", got.TotalGross.String())
	assert.Equal(t, "975", got.TotalNet.String())
	assert.Equal(t, int64(12), got.SaleCount)
	assert.Len(t, got.TopClients, topClientsLimit)
	assert.Len(t, got.ByPaymentMethod, 1)
	assert.Equal(t, []model.MachineStatusCount{{Status: model.MachineInstalled, Count: 1}}, got.MachinesByStatus)
	assert.Equal(t, int64(3), got.OpenTickets)
	assert.Equal(t, int64(2), got.PendingApprovals)
	assert.Equal(t, start, got.RangeStart)
}

func TestGetStatistics_Errors(t *testing.T) {
	start := time.Now()
	svc := NewStatisticsService(&fakeStats{}, newFakeMachines())

	_, err := svc.GetStatistics(context.Background(), start, start)
	assert.True(t, errors.Is(err, ErrValidation))

	failing := NewStatisticsService(&fakeStats{err: errors.New("connection reset")}, newFakeMachines())
	_, err = failing.GetStatistics(context.Background(), start, start.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestGetSalesSeries(t *testing.T) {
	stats := &fakeStats{series: []model.SalesPeriod{{Period: "2026-03", SaleCount: 4}}}
	svc := NewStatisticsService(stats, newFakeMachines())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 6, 0)

	series, err := svc.GetSalesSeries(context.Background(), " Month ", start, end)
	require.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Equal(t, "month", stats.groupBy)

	_, err = svc.GetSalesSeries(context.Background(), "", start, end)
	require.NoError(t, err)
	assert.Equal(t, "day", stats.groupBy)

	_, err = svc.GetSalesSeries(context.Background(), "hour", start, end)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.GetSalesSeries(context.Background(), "week", end, start)
	assert.True(t, errors.Is(err, ErrValidation))
}
