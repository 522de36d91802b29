package service

import (
	"context"
	"log/slog"
	"time"
)

// TransferWorker periodically applies tax block transfers whose cutoff has passed
type TransferWorker struct {
	svc      TaxBlockAssignmentService
	interval time.Duration
	log      *slog.Logger
}

func NewTransferWorker(svc TaxBlockAssignmentService, interval time.Duration, log *slog.Logger) *TransferWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TransferWorker{svc: svc, interval: interval, log: log}
}

// Run ticks until ctx is cancelled; it always returns nil so a failed pass never stops the server
func (w *TransferWorker) Run(ctx context.Context) error {
	w.log.Info("transfer worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("transfer worker stopped")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce applies every transfer due now and logs the result
func (w *TransferWorker) RunOnce(ctx context.Context) int {
	applied, err := w.svc.ApplyDueTransfers(ctx, time.Now())
	if err != nil {
		w.log.Error("applying due tax block transfers", "applied", applied, "error", err)
	} else if applied > 0 {
		w.log.Info("applied due tax block transfers", "applied", applied)
	}
	return applied
}
