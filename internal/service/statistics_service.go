package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"golang.org/x/sync/errgroup"
)

const topClientsLimit = 5

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.DashboardStatistics, error)
	GetSalesSeries(ctx context.Context, groupBy string, startDate, endDate time.Time) ([]model.SalesPeriod, error)
}

type statisticsService struct {
	stats    repository.StatisticsRepository
	machines repository.MachineRepository
}

func NewStatisticsService(stats repository.StatisticsRepository, machines repository.MachineRepository) StatisticsService {
	return &statisticsService{stats: stats, machines: machines}
}

// GetStatistics aggregates the dashboard for sales sold within [startDate, endDate)
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.DashboardStatistics, error) {
	if !endDate.After(startDate) {
		return model.DashboardStatistics{}, invalid("end date must be after start date")
	}

	response := model.DashboardStatistics{RangeStart: startDate, RangeEnd: endDate}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		totals, err := s.stats.GetSaleTotals(gctx, startDate, endDate)
		if err != nil {
			return err
		}
		response.TotalGross = totals.GrossAmount
		response.TotalFees = totals.FeeAmount
		response.TotalNet = totals.NetAmount
		response.SaleCount = totals.SaleCount
		return nil
	})

	g.Go(func() error {
		byMethod, err := s.stats.GetTotalsByPaymentMethod(gctx, startDate, endDate)
		if err != nil {
			return err
		}
		response.ByPaymentMethod = byMethod
		return nil
	})

	g.Go(func() error {
		top, err := s.stats.GetTopClients(gctx, startDate, endDate, topClientsLimit)
		if err != nil {
			return err
		}
		response.TopClients = top
		return nil
	})

	g.Go(func() error {
		counts, err := s.machines.CountByStatus(gctx)
		if err != nil {
			return err
		}
		response.MachinesByStatus = counts
		return nil
	})

	g.Go(func() error {
		open, err := s.stats.CountTicketsByStatus(gctx, model.TicketOpen, model.TicketInProgress)
		if err != nil {
			return err
		}
		response.OpenTickets = open
		return nil
	})

	g.Go(func() error {
		pending, err := s.stats.CountApprovalsByStatus(gctx, model.ApprovalPending)
		if err != nil {
			return err
		}
		response.PendingApprovals = pending
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.DashboardStatistics{}, fmt.Errorf("failed to build statistics: %w", err)
	}

	return response, nil
}

// GetSalesSeries buckets sales by day, week or month
func (s *statisticsService) GetSalesSeries(ctx context.Context, groupBy string, startDate, endDate time.Time) ([]model.SalesPeriod, error) {
	groupBy = strings.ToLower(strings.TrimSpace(groupBy))
	if groupBy == "" {
		groupBy = "day"
	}
	switch groupBy {
	case "day", "week", "month":
	default:
		return nil, invalid("group_by must be day, week or month")
	}
	if !endDate.After(startDate) {
		return nil, invalid("end date must be after start date")
	}

	series, err := s.stats.GetSalesSeries(ctx, groupBy, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sales series: %w", err)
	}
	return series, nil
}
