package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"kovara/internal/banking"
	"kovara/internal/cache"
	"kovara/internal/core"
	"kovara/internal/providers"
)

type fakeAggregator struct {
	accountsByToken  map[string]providers.Account
	txsByToken       map[string][]providers.ProviderTransaction
	txErr            error
	exchangeSeq      int
	institutionCalls int
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{
		accountsByToken: map[string]providers.Account{},
		txsByToken:      map[string][]providers.ProviderTransaction{},
	}
}

func (f *fakeAggregator) CreateLinkToken(ctx context.Context, userID, clientName string) (string, error) {
	return "link-" + userID, nil
}

func (f *fakeAggregator) ExchangePublicToken(ctx context.Context, publicToken string) (providers.ItemAccess, error) {
	f.exchangeSeq++
	token := "access-" + publicToken
	f.accountsByToken[token] = providers.Account{
		ID:             "provider-acct-" + publicToken,
		Name:           "Checking",
		OfficialName:   "Everyday Checking",
		Mask:           "4321",
		Type:           "depository",
		Subtype:        "checking",
		InstitutionID:  "ins_1",
		CurrentBalance: core.Money{Cents: 50000},
	}
	return providers.ItemAccess{AccessToken: token, ItemID: "item-" + publicToken}, nil
}

func (f *fakeAggregator) GetAccount(ctx context.Context, accessToken string) (providers.Account, error) {
	a, ok := f.accountsByToken[accessToken]
	if !ok {
		return providers.Account{}, errors.New("unknown token")
	}
	return a, nil
}

func (f *fakeAggregator) GetInstitution(ctx context.Context, institutionID string) (providers.Institution, error) {
	f.institutionCalls++
	return providers.Institution{ID: institutionID, Name: "Test Bank"}, nil
}

func (f *fakeAggregator) CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error) {
	return "processor-" + accountID, nil
}

func (f *fakeAggregator) ListTransactions(ctx context.Context, accessToken string) ([]providers.ProviderTransaction, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.txsByToken[accessToken], nil
}

func newAccountService(accounts *fakeAccountStore, txs *fakeTransactionStore, agg *fakeAggregator) *AccountService {
	return NewAccountService(accounts, txs, agg, &fakeGateway{},
		cache.NewLRUCache[providers.Institution](10, time.Minute), "kovara")
}

func TestLinkAccount(t *testing.T) {
	accounts := &fakeAccountStore{}
	agg := newFakeAggregator()
	svc := newAccountService(accounts, &fakeTransactionStore{}, agg)

	user := core.User{ID: "u1", PaymentsCustomerURL: "https://pay.test/customers/u1"}
	linked, err := svc.LinkAccount(context.Background(), user, "public-1")
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	if linked.UserID != "u1" {
		t.Errorf("UserID = %q", linked.UserID)
	}
	if linked.AccessToken != "access-public-1" {
		t.Errorf("AccessToken = %q", linked.AccessToken)
	}
	if linked.FundingSourceURL == "" {
		t.Error("expected funding source URL")
	}
	if linked.ShareableID == "" || linked.ShareableID == linked.ProviderAccountID {
		t.Errorf("shareable ID must be an encoding of the provider account id, got %q", linked.ShareableID)
	}
	if len(accounts.accounts) != 1 {
		t.Fatalf("stored %d accounts, want 1", len(accounts.accounts))
	}
}

func TestListAccountsSumsBalances(t *testing.T) {
	accounts := &fakeAccountStore{}
	agg := newFakeAggregator()
	svc := newAccountService(accounts, &fakeTransactionStore{}, agg)
	ctx := context.Background()

	user := core.User{ID: "u1", PaymentsCustomerURL: "https://pay.test/customers/u1"}
	for _, pub := range []string{"p1", "p2"} {
		if _, err := svc.LinkAccount(ctx, user, pub); err != nil {
			t.Fatalf("LinkAccount(%s): %v", pub, err)
		}
	}

	list, err := svc.ListAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if list.TotalBanks != 2 {
		t.Fatalf("TotalBanks = %d, want 2", list.TotalBanks)
	}
	if list.TotalBalance.Cents != 100000 {
		t.Fatalf("TotalBalance = %d, want 100000", list.TotalBalance.Cents)
	}
	if list.Accounts[0].InstitutionName != "Test Bank" {
		t.Fatalf("InstitutionName = %q", list.Accounts[0].InstitutionName)
	}
}

func TestListAccountsUsesInstitutionCache(t *testing.T) {
	accounts := &fakeAccountStore{}
	agg := newFakeAggregator()
	svc := newAccountService(accounts, &fakeTransactionStore{}, agg)
	ctx := context.Background()

	user := core.User{ID: "u1", PaymentsCustomerURL: "https://pay.test/customers/u1"}
	for _, pub := range []string{"p1", "p2", "p3"} {
		if _, err := svc.LinkAccount(ctx, user, pub); err != nil {
			t.Fatalf("LinkAccount(%s): %v", pub, err)
		}
	}

	if _, err := svc.ListAccounts(ctx, "u1"); err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if _, err := svc.ListAccounts(ctx, "u1"); err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}

	// All three accounts share one institution; only the first lookup may
	// reach the provider.
	if agg.institutionCalls != 1 {
		t.Fatalf("institution lookups = %d, want 1", agg.institutionCalls)
	}
}

func TestGetAccountDetailMergesAndSortsHistory(t *testing.T) {
	accounts := &fakeAccountStore{}
	agg := newFakeAggregator()
	txs := &fakeTransactionStore{}
	svc := newAccountService(accounts, txs, agg)
	ctx := context.Background()

	user := core.User{ID: "u1", PaymentsCustomerURL: "https://pay.test/customers/u1"}
	linked, err := svc.LinkAccount(ctx, user, "p1")
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	older := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, time.August, 10, 0, 0, 0, 0, time.UTC)

	txs.txs = []core.Transaction{{
		ID: "t1", SenderBankID: linked.ID, ReceiverBankID: "other",
		Amount: core.Money{Cents: 2000}, Name: "Rent",
		Status: core.StatusSettled, Date: older,
	}}
	agg.txsByToken[linked.AccessToken] = []providers.ProviderTransaction{{
		ID: "p-t1", Name: "Groceries", Amount: core.Money{Cents: 3000}, Date: newer,
	}}

	detail, err := svc.GetAccountDetail(ctx, "u1", linked.ID)
	if err != nil {
		t.Fatalf("GetAccountDetail: %v", err)
	}
	if len(detail.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(detail.Transactions))
	}
	if detail.Transactions[0].ID != "p-t1" {
		t.Fatalf("expected newest first, got %q", detail.Transactions[0].ID)
	}
	if detail.Transactions[1].Type != "debit" {
		t.Fatalf("internal tx where account is sender must be a debit, got %q", detail.Transactions[1].Type)
	}
}

func TestGetAccountDetailDegradesOnProviderOutage(t *testing.T) {
	accounts := &fakeAccountStore{}
	agg := newFakeAggregator()
	txs := &fakeTransactionStore{}
	svc := newAccountService(accounts, txs, agg)
	ctx := context.Background()

	user := core.User{ID: "u1", PaymentsCustomerURL: "https://pay.test/customers/u1"}
	linked, err := svc.LinkAccount(ctx, user, "p1")
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	txs.txs = []core.Transaction{{
		ID: "t1", ReceiverBankID: linked.ID, SenderBankID: "other",
		Amount: core.Money{Cents: 100}, Status: core.StatusSettled,
		Date: time.Now(),
	}}
	agg.txErr = errors.New("provider down")

	detail, err := svc.GetAccountDetail(ctx, "u1", linked.ID)
	if err != nil {
		t.Fatalf("internal history should still be served: %v", err)
	}
	if len(detail.Transactions) != 1 || detail.Transactions[0].ID != "t1" {
		t.Fatalf("unexpected history: %+v", detail.Transactions)
	}
}

func TestListTransactionHistoryPaginates(t *testing.T) {
	accounts := &fakeAccountStore{}
	agg := newFakeAggregator()
	txs := &fakeTransactionStore{}
	svc := newAccountService(accounts, txs, agg)
	ctx := context.Background()

	user := core.User{ID: "u1", PaymentsCustomerURL: "https://pay.test/customers/u1"}
	linked, err := svc.LinkAccount(ctx, user, "p1")
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	base := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		agg.txsByToken[linked.AccessToken] = append(agg.txsByToken[linked.AccessToken],
			providers.ProviderTransaction{
				ID:     string(rune('a' + i)),
				Amount: core.Money{Cents: 100},
				Date:   base.AddDate(0, 0, i),
			})
	}

	page1, err := svc.ListTransactionHistory(ctx, "u1", linked.ID, 1, 2)
	if err != nil {
		t.Fatalf("ListTransactionHistory: %v", err)
	}
	if page1.TotalCount != 5 {
		t.Fatalf("TotalCount = %d, want 5", page1.TotalCount)
	}
	if len(page1.Transactions) != 2 {
		t.Fatalf("page 1 size = %d, want 2", len(page1.Transactions))
	}
	// Newest first: day 5 then day 4.
	if page1.Transactions[0].ID != "e" || page1.Transactions[1].ID != "d" {
		t.Fatalf("page 1 = %q, %q", page1.Transactions[0].ID, page1.Transactions[1].ID)
	}

	page3, err := svc.ListTransactionHistory(ctx, "u1", linked.ID, 3, 2)
	if err != nil {
		t.Fatalf("ListTransactionHistory page 3: %v", err)
	}
	if len(page3.Transactions) != 1 || page3.Transactions[0].ID != "a" {
		t.Fatalf("page 3 = %+v", page3.Transactions)
	}

	beyond, err := svc.ListTransactionHistory(ctx, "u1", linked.ID, 9, 2)
	if err != nil {
		t.Fatalf("ListTransactionHistory beyond end: %v", err)
	}
	if len(beyond.Transactions) != 0 {
		t.Fatalf("page beyond end must be empty, got %d", len(beyond.Transactions))
	}
}

func TestListTransactionHistoryHidesOtherUsersAccounts(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []core.LinkedAccount{account("a1", "someone-else")}}
	svc := newAccountService(accounts, &fakeTransactionStore{}, newFakeAggregator())

	_, err := svc.ListTransactionHistory(context.Background(), "u1", "a1", 1, 20)
	if !errors.Is(err, banking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAccountDetailHidesOtherUsersAccounts(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []core.LinkedAccount{account("a1", "someone-else")}}
	svc := newAccountService(accounts, &fakeTransactionStore{}, newFakeAggregator())

	_, err := svc.GetAccountDetail(context.Background(), "u1", "a1")
	if !errors.Is(err, banking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
