// Package sandbox is an in-memory stand-in for both vendor platforms. It lets
// the server run end to end with no credentials: link tokens always succeed,
// every public token exchanges into a deterministic fake account, and
// transfers settle on the second status poll.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"kovara/internal/core"
	"kovara/internal/providers"
)

type Sandbox struct {
	mu           sync.Mutex
	items        map[string]providers.Account       // access token -> account
	transactions map[string][]providers.ProviderTransaction
	transfers    map[string]int // transfer URL -> status polls seen
	seq          int
}

func New() *Sandbox {
	return &Sandbox{
		items:        make(map[string]providers.Account),
		transactions: make(map[string][]providers.ProviderTransaction),
		transfers:    make(map[string]int),
	}
}

func (s *Sandbox) CreateLinkToken(ctx context.Context, userID, clientName string) (string, error) {
	return "link-sandbox-" + uuid.NewString(), nil
}

func (s *Sandbox) ExchangePublicToken(ctx context.Context, publicToken string) (providers.ItemAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	access := providers.ItemAccess{
		AccessToken: fmt.Sprintf("access-sandbox-%d", s.seq),
		ItemID:      fmt.Sprintf("item-sandbox-%d", s.seq),
	}
	s.items[access.AccessToken] = providers.Account{
		ID:               fmt.Sprintf("acct-sandbox-%d", s.seq),
		Name:             fmt.Sprintf("Sandbox Checking %d", s.seq),
		OfficialName:     "Sandbox Checking Account",
		Mask:             "0000",
		Type:             "depository",
		Subtype:          "checking",
		InstitutionID:    "ins_sandbox",
		AvailableBalance: core.Money{Cents: 100000},
		CurrentBalance:   core.Money{Cents: 110000},
	}
	return access, nil
}

func (s *Sandbox) GetAccount(ctx context.Context, accessToken string) (providers.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.items[accessToken]
	if !ok {
		return providers.Account{}, fmt.Errorf("unknown access token %q", accessToken)
	}
	return account, nil
}

func (s *Sandbox) GetInstitution(ctx context.Context, institutionID string) (providers.Institution, error) {
	return providers.Institution{ID: institutionID, Name: "Sandbox Bank"}, nil
}

func (s *Sandbox) CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[accessToken]; !ok {
		return "", fmt.Errorf("unknown access token %q", accessToken)
	}
	return "processor-sandbox-" + uuid.NewString(), nil
}

// SeedTransactions registers provider transactions to be returned for an
// access token. Test hook.
func (s *Sandbox) SeedTransactions(accessToken string, txs []providers.ProviderTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[accessToken] = txs
}

func (s *Sandbox) ListTransactions(ctx context.Context, accessToken string) ([]providers.ProviderTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[accessToken]; !ok {
		return nil, fmt.Errorf("unknown access token %q", accessToken)
	}
	return s.transactions[accessToken], nil
}

func (s *Sandbox) CreateCustomer(ctx context.Context, p providers.CustomerParams) (string, error) {
	if p.FirstName == "" || p.LastName == "" || p.Email == "" {
		return "", fmt.Errorf("incomplete customer record")
	}
	return "https://sandbox.local/customers/" + uuid.NewString(), nil
}

func (s *Sandbox) CreateFundingSource(ctx context.Context, customerURL, name, processorToken string) (string, error) {
	if customerURL == "" || processorToken == "" {
		return "", fmt.Errorf("customer URL and processor token are required")
	}
	return "https://sandbox.local/funding-sources/" + uuid.NewString(), nil
}

func (s *Sandbox) CreateTransfer(ctx context.Context, sourceURL, destinationURL string, amount core.Money) (string, error) {
	if err := amount.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	transferURL := "https://sandbox.local/transfers/" + uuid.NewString()
	s.transfers[transferURL] = 0
	return transferURL, nil
}

func (s *Sandbox) GetTransferStatus(ctx context.Context, transferURL string) (providers.TransferStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	polls, ok := s.transfers[transferURL]
	if !ok {
		return "", fmt.Errorf("unknown transfer %q", transferURL)
	}
	s.transfers[transferURL] = polls + 1
	if polls == 0 {
		return providers.TransferPending, nil
	}
	return providers.TransferProcessed, nil
}

var _ providers.AccountAggregator = (*Sandbox)(nil)
var _ providers.PaymentsGateway = (*Sandbox)(nil)
