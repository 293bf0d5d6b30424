// Package providers declares the ports for the two vendor platforms the
// dashboard depends on: the bank-data aggregation API (account linking, live
// balances, institution metadata) and the ACH payments API (customers,
// funding sources, money movement). The services consume these interfaces;
// vendor-specific adapters live in the subpackages.
package providers

import (
	"context"
	"time"

	"kovara/internal/core"
)

type (
	// ItemAccess is the durable credential pair returned by a public-token
	// exchange: the access token used for all later item calls, plus the
	// provider's item identifier.
	ItemAccess struct {
		AccessToken string
		ItemID      string
	}

	// Account is a live view of one bank account at the aggregation provider.
	Account struct {
		ID               string
		Name             string
		OfficialName     string
		Mask             string
		Type             string
		Subtype          string
		InstitutionID    string
		AvailableBalance core.Money
		CurrentBalance   core.Money
	}

	// Institution is display metadata for a financial institution.
	Institution struct {
		ID   string
		Name string
	}

	// ProviderTransaction is a transaction as reported by the aggregation
	// provider for one linked account.
	ProviderTransaction struct {
		ID       string
		Name     string
		Amount   core.Money
		Pending  bool
		Channel  string
		Category string
		Date     time.Time
	}

	// CustomerParams is the KYC payload for creating a payments customer.
	CustomerParams struct {
		FirstName   string
		LastName    string
		Email       string
		Type        string
		Address1    string
		City        string
		State       string
		PostalCode  string
		DateOfBirth string
		SSN         string
	}

	// TransferStatus is the payments network's view of one transfer.
	TransferStatus string
)

const (
	TransferPending   TransferStatus = "pending"
	TransferProcessed TransferStatus = "processed"
	TransferFailed    TransferStatus = "failed"
	TransferCancelled TransferStatus = "cancelled"
)

// AccountAggregator is the bank-data aggregation platform.
type AccountAggregator interface {
	CreateLinkToken(ctx context.Context, userID, clientName string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (ItemAccess, error)
	GetAccount(ctx context.Context, accessToken string) (Account, error)
	GetInstitution(ctx context.Context, institutionID string) (Institution, error)
	CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error)
	ListTransactions(ctx context.Context, accessToken string) ([]ProviderTransaction, error)
}

// PaymentsGateway is the ACH money-movement platform. Create calls return the
// URL of the created resource, which doubles as its identifier.
type PaymentsGateway interface {
	CreateCustomer(ctx context.Context, p CustomerParams) (customerURL string, err error)
	CreateFundingSource(ctx context.Context, customerURL, name, processorToken string) (fundingSourceURL string, err error)
	CreateTransfer(ctx context.Context, sourceURL, destinationURL string, amount core.Money) (transferURL string, err error)
	GetTransferStatus(ctx context.Context, transferURL string) (TransferStatus, error)
}
