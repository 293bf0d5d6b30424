package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kovara/internal/banking"
	"kovara/internal/core"
	"kovara/internal/providers"
)

// ErrUnknownAccount marks a transfer referencing a shareable ID that resolves
// to no linked account.
var ErrUnknownAccount = errors.New("unknown account")

// SettlementPublisher enqueues settlement poll requests for the worker.
// Satisfied by *amqp.Client.
type SettlementPublisher interface {
	PublishTransferSettlement(ctx context.Context, transactionID, transferURL string) error
}

// TransferService initiates money movement between two linked accounts. The
// transfer is created at the payments network and recorded locally as
// processing; settlement happens asynchronously.
type TransferService struct {
	accounts     banking.AccountStore
	transactions banking.TransactionStore
	payments     providers.PaymentsGateway
	publisher    SettlementPublisher
}

func NewTransferService(
	accounts banking.AccountStore,
	transactions banking.TransactionStore,
	payments providers.PaymentsGateway,
	publisher SettlementPublisher,
) *TransferService {
	return &TransferService{
		accounts:     accounts,
		transactions: transactions,
		payments:     payments,
		publisher:    publisher,
	}
}

// CreateTransfer debits one of userID's own accounts and credits the
// receiver. Only the sender side requires ownership: shareable IDs exist so
// anyone can be paid, never so anyone can be charged.
func (s *TransferService) CreateTransfer(ctx context.Context, userID string, p core.TransferParams) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}

	sender, err := s.resolveAccount(ctx, p.SenderShareableID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("sender: %w", err)
	}
	if sender.UserID != userID {
		// Same shape as an unknown ID so the response does not reveal that
		// the account exists.
		return core.Transaction{}, fmt.Errorf("sender: %w", ErrUnknownAccount)
	}
	receiver, err := s.resolveAccount(ctx, p.ReceiverShareableID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("receiver: %w", err)
	}

	transferURL, err := s.payments.CreateTransfer(ctx, sender.FundingSourceURL, receiver.FundingSourceURL, p.Amount.Abs())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transfer: %w", err)
	}

	now := time.Now().UTC()
	tx := core.Transaction{
		ID:             uuid.NewString(),
		SenderBankID:   sender.ID,
		ReceiverBankID: receiver.ID,
		Amount:         p.Amount.Abs(),
		Name:           p.Name,
		Email:          p.Email,
		Channel:        core.ChannelOnline,
		Category:       core.CategoryTransfer,
		Status:         core.StatusProcessing,
		TransferURL:    transferURL,
		Date:           now,
		CreatedAt:      now,
	}
	if err := s.transactions.CreateTransaction(ctx, tx); err != nil {
		// The transfer exists at the payments network; the settlement worker
		// cannot repair a record we failed to write, so this stays an error.
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	// Settlement is best effort here: the worker also sweeps processing
	// transactions, so a lost message delays settlement instead of losing it.
	if s.publisher != nil {
		if err := s.publisher.PublishTransferSettlement(ctx, tx.ID, transferURL); err != nil {
			slog.ErrorContext(ctx, "Failed to publish settlement message",
				"transaction_id", tx.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Transfer initiated",
		"transaction_id", tx.ID,
		"sender_bank_id", sender.ID,
		"receiver_bank_id", receiver.ID,
		"amount_cents", tx.Amount.Cents)
	return tx, nil
}

func (s *TransferService) resolveAccount(ctx context.Context, shareableID string) (core.LinkedAccount, error) {
	account, err := s.accounts.GetLinkedAccountByShareableID(ctx, shareableID)
	if errors.Is(err, banking.ErrNotFound) {
		return core.LinkedAccount{}, ErrUnknownAccount
	}
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("%w: resolve account: %w", banking.ErrLookupFailure, err)
	}
	return account, nil
}
