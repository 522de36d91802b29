package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingApplier struct {
	TaxBlockAssignmentService
	mu      sync.Mutex
	calls   int
	applied int
	err     error
	onCall  func()
}

func (c *countingApplier) ApplyDueTransfers(context.Context, time.Time) (int, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.onCall != nil {
		c.onCall()
	}
	return c.applied, c.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransferWorker_RunOnce(t *testing.T) {
	applier := &countingApplier{applied: 3}
	w := NewTransferWorker(applier, time.Minute, discardLogger())
	assert.Equal(t, 3, w.RunOnce(context.Background()))

	applier.err = errors.New("db down")
	applier.applied = 1
	assert.Equal(t, 1, w.RunOnce(context.Background()))
}

func TestTransferWorker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	applier := &countingApplier{onCall: cancel}
	w := NewTransferWorker(applier, time.Hour, discardLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.Equal(t, 1, applier.calls)
}

func TestNewTransferWorker_DefaultsInterval(t *testing.T) {
	w := NewTransferWorker(&countingApplier{}, 0, discardLogger())
	assert.Equal(t, time.Minute, w.interval)
}
