// Package worker resolves pending transfers. It reacts to settlement
// messages from the API server and periodically sweeps the database for
// processing transactions whose message was lost.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kovara/internal/amqp"
	"kovara/internal/banking"
	"kovara/internal/core"
	"kovara/internal/providers"
)

// errStillPending requeues a settlement message until the payments network
// resolves the transfer.
var errStillPending = errors.New("transfer still pending")

// TransactionSource is the slice of storage the worker needs.
type TransactionSource interface {
	banking.TransactionStore
	ListTransactionsByStatus(ctx context.Context, status core.TransactionStatus, limit int) ([]core.Transaction, error)
}

type SettlementWorker struct {
	storage   TransactionSource
	payments  providers.PaymentsGateway
	batchSize int
}

func NewSettlementWorker(storage TransactionSource, payments providers.PaymentsGateway, batchSize int) *SettlementWorker {
	return &SettlementWorker{
		storage:   storage,
		payments:  payments,
		batchSize: batchSize,
	}
}

// HandleSettlementMessage polls the payments network once for the transfer in
// msg. Returning an error requeues the message, which is how pending
// transfers get retried.
func (w *SettlementWorker) HandleSettlementMessage(ctx context.Context, msg *amqp.TransferSettlementMessage) error {
	tx, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if errors.Is(err, banking.ErrNotFound) {
		slog.WarnContext(ctx, "Settlement message for unknown transaction, dropping",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	if tx.Status != core.StatusProcessing {
		slog.InfoContext(ctx, "Transaction already resolved",
			"transaction_id", tx.ID, "status", string(tx.Status))
		return nil
	}

	return w.settle(ctx, tx.ID, msg.TransferURL)
}

// SweepProcessing polls every processing transaction, up to the batch size.
// It backstops lost settlement messages.
func (w *SettlementWorker) SweepProcessing(ctx context.Context) error {
	pending, err := w.storage.ListTransactionsByStatus(ctx, core.StatusProcessing, w.batchSize)
	if err != nil {
		return fmt.Errorf("list processing transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Sweeping processing transactions", "count", len(pending))
	for _, tx := range pending {
		if tx.TransferURL == "" {
			slog.WarnContext(ctx, "Processing transaction has no transfer URL, skipping",
				"transaction_id", tx.ID)
			continue
		}
		if err := w.settle(ctx, tx.ID, tx.TransferURL); err != nil && !errors.Is(err, errStillPending) {
			slog.ErrorContext(ctx, "Failed to settle transaction",
				"transaction_id", tx.ID, "error", err)
		}
	}
	return nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (w *SettlementWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Settlement worker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Settlement worker stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepProcessing(ctx); err != nil {
				slog.ErrorContext(ctx, "Sweep failed", "error", err)
			}
		}
	}
}

func (w *SettlementWorker) settle(ctx context.Context, transactionID, transferURL string) error {
	status, err := w.payments.GetTransferStatus(ctx, transferURL)
	if err != nil {
		return fmt.Errorf("get transfer status: %w", err)
	}

	var next core.TransactionStatus
	switch status {
	case providers.TransferProcessed:
		next = core.StatusSettled
	case providers.TransferFailed, providers.TransferCancelled:
		next = core.StatusFailed
	case providers.TransferPending:
		return errStillPending
	default:
		return fmt.Errorf("unexpected transfer status %q", status)
	}

	if err := w.storage.UpdateTransactionStatus(ctx, transactionID, next); err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	slog.InfoContext(ctx, "Transaction resolved",
		"transaction_id", transactionID, "status", string(next))
	return nil
}
