package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kovara/internal/banking"
	"kovara/internal/cache"
	"kovara/internal/core"
	"kovara/internal/providers"
)

// AccountView is one linked account enriched with live provider data for the
// dashboard account list.
type AccountView struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	OfficialName     string     `json:"officialName"`
	Mask             string     `json:"mask"`
	Type             string     `json:"type"`
	Subtype          string     `json:"subtype"`
	InstitutionID    string     `json:"institutionId"`
	InstitutionName  string     `json:"institutionName"`
	AvailableBalance core.Money `json:"availableBalance"`
	CurrentBalance   core.Money `json:"currentBalance"`
	ShareableID      string     `json:"shareableId"`
}

// AccountList is the dashboard account overview: every account plus the sum
// of current balances.
type AccountList struct {
	Accounts     []AccountView `json:"accounts"`
	TotalBanks   int           `json:"totalBanks"`
	TotalBalance core.Money    `json:"totalCurrentBalance"`
}

// TransactionView is one transaction row in an account's history. Type is the
// direction relative to the viewed account: debit out, credit in.
type TransactionView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Amount   core.Money `json:"amount"`
	Type     string     `json:"type"`
	Status   string     `json:"status"`
	Channel  string     `json:"channel"`
	Category string     `json:"category"`
	Date     time.Time  `json:"date"`
}

// AccountDetail is one account with its transaction history, newest first.
type AccountDetail struct {
	Account      AccountView       `json:"account"`
	Transactions []TransactionView `json:"transactions"`
}

// TransactionPage is one page of an account's merged history.
type TransactionPage struct {
	Transactions []TransactionView `json:"transactions"`
	Page         int               `json:"page"`
	PageSize     int               `json:"pageSize"`
	TotalCount   int               `json:"totalCount"`
}

// AccountService links bank accounts through the aggregation platform and
// serves the enriched account views.
type AccountService struct {
	accounts     banking.AccountStore
	transactions banking.TransactionStore
	aggregator   providers.AccountAggregator
	payments     providers.PaymentsGateway
	institutions cache.Cache[providers.Institution]
	clientName   string
}

func NewAccountService(
	accounts banking.AccountStore,
	transactions banking.TransactionStore,
	aggregator providers.AccountAggregator,
	payments providers.PaymentsGateway,
	institutions cache.Cache[providers.Institution],
	clientName string,
) *AccountService {
	return &AccountService{
		accounts:     accounts,
		transactions: transactions,
		aggregator:   aggregator,
		payments:     payments,
		institutions: institutions,
		clientName:   clientName,
	}
}

func (s *AccountService) CreateLinkToken(ctx context.Context, user core.User) (string, error) {
	token, err := s.aggregator.CreateLinkToken(ctx, user.ID, s.clientName)
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return token, nil
}

// LinkAccount runs the full exchange flow: trade the public token for
// durable credentials, read the account, mint a processor token, attach a
// funding source to the user's payments customer, then persist the link.
// Nothing is stored until every vendor call has succeeded.
func (s *AccountService) LinkAccount(ctx context.Context, user core.User, publicToken string) (core.LinkedAccount, error) {
	access, err := s.aggregator.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("exchange public token: %w", err)
	}

	account, err := s.aggregator.GetAccount(ctx, access.AccessToken)
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("get account: %w", err)
	}

	processorToken, err := s.aggregator.CreateProcessorToken(ctx, access.AccessToken, account.ID)
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("create processor token: %w", err)
	}

	fundingSourceURL, err := s.payments.CreateFundingSource(ctx, user.PaymentsCustomerURL, account.Name, processorToken)
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("create funding source: %w", err)
	}

	linked := core.LinkedAccount{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		ProviderItemID:    access.ItemID,
		ProviderAccountID: account.ID,
		AccessToken:       access.AccessToken,
		FundingSourceURL:  fundingSourceURL,
		ShareableID:       base64.RawURLEncoding.EncodeToString([]byte(account.ID)),
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.accounts.CreateLinkedAccount(ctx, linked); err != nil {
		return core.LinkedAccount{}, err
	}

	slog.InfoContext(ctx, "Bank account linked",
		"user_id", user.ID,
		"account_id", linked.ID,
		"institution_id", account.InstitutionID)
	return linked, nil
}

// ListAccounts returns every linked account with live balances. Provider
// fetches run concurrently, one per account.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) (AccountList, error) {
	linked, err := s.accounts.ListLinkedAccounts(ctx, userID)
	if err != nil {
		return AccountList{}, fmt.Errorf("%w: list linked accounts: %w", banking.ErrLookupFailure, err)
	}

	views := make([]AccountView, len(linked))
	g, gctx := errgroup.WithContext(ctx)
	for i, la := range linked {
		g.Go(func() error {
			view, err := s.accountView(gctx, la)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AccountList{}, err
	}

	list := AccountList{Accounts: views, TotalBanks: len(views)}
	for _, v := range views {
		list.TotalBalance.Cents += v.CurrentBalance.Cents
	}
	return list, nil
}

// GetAccountDetail returns one account with its merged transaction history.
func (s *AccountService) GetAccountDetail(ctx context.Context, userID, accountID string) (AccountDetail, error) {
	la, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return AccountDetail{}, err
	}

	view, err := s.accountView(ctx, la)
	if err != nil {
		return AccountDetail{}, err
	}

	history, err := s.mergedHistory(ctx, la)
	if err != nil {
		return AccountDetail{}, err
	}

	return AccountDetail{Account: view, Transactions: history}, nil
}

// ListTransactionHistory pages through an account's merged history, newest
// first. Page numbering starts at 1.
func (s *AccountService) ListTransactionHistory(ctx context.Context, userID, accountID string, page, pageSize int) (TransactionPage, error) {
	la, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return TransactionPage{}, err
	}

	history, err := s.mergedHistory(ctx, la)
	if err != nil {
		return TransactionPage{}, err
	}

	total := len(history)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return TransactionPage{
		Transactions: history[start:end],
		Page:         page,
		PageSize:     pageSize,
		TotalCount:   total,
	}, nil
}

// ownedAccount resolves a linked account and hides other users' accounts
// behind ErrNotFound.
func (s *AccountService) ownedAccount(ctx context.Context, userID, accountID string) (core.LinkedAccount, error) {
	la, err := s.accounts.GetLinkedAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, banking.ErrNotFound) {
			return core.LinkedAccount{}, err
		}
		return core.LinkedAccount{}, fmt.Errorf("%w: get linked account: %w", banking.ErrLookupFailure, err)
	}
	if la.UserID != userID {
		return core.LinkedAccount{}, banking.ErrNotFound
	}
	return la, nil
}

// mergedHistory combines internal transfer records with the provider feed,
// newest first. A provider outage on the feed degrades to internal history
// only; a failure on the internal side aborts.
func (s *AccountService) mergedHistory(ctx context.Context, la core.LinkedAccount) ([]TransactionView, error) {
	internal, err := s.transactions.ListTransactionsForAccount(ctx, la.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", banking.ErrLookupFailure, err)
	}

	history := make([]TransactionView, 0, len(internal))
	for _, tx := range internal {
		direction := "credit"
		if tx.SenderBankID == la.ID {
			direction = "debit"
		}
		history = append(history, TransactionView{
			ID:       tx.ID,
			Name:     tx.Name,
			Amount:   tx.Amount.Abs(),
			Type:     direction,
			Status:   string(tx.Status),
			Channel:  tx.Channel,
			Category: tx.Category,
			Date:     tx.EffectiveDate(),
		})
	}

	providerTxs, err := s.aggregator.ListTransactions(ctx, la.AccessToken)
	if err != nil {
		slog.WarnContext(ctx, "Provider transaction feed unavailable, serving internal history only",
			"account_id", la.ID, "error", err)
	} else {
		for _, tx := range providerTxs {
			status := "settled"
			if tx.Pending {
				status = "processing"
			}
			direction := "debit"
			if tx.Amount.Cents < 0 {
				// The aggregation provider reports inflows as negative.
				direction = "credit"
			}
			history = append(history, TransactionView{
				ID:       tx.ID,
				Name:     tx.Name,
				Amount:   tx.Amount.Abs(),
				Type:     direction,
				Status:   status,
				Channel:  tx.Channel,
				Category: tx.Category,
				Date:     tx.Date,
			})
		}
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].Date.After(history[j].Date)
	})

	return history, nil
}

func (s *AccountService) accountView(ctx context.Context, la core.LinkedAccount) (AccountView, error) {
	account, err := s.aggregator.GetAccount(ctx, la.AccessToken)
	if err != nil {
		return AccountView{}, fmt.Errorf("get account %s: %w", la.ID, err)
	}

	institution, err := s.institution(ctx, account.InstitutionID)
	if err != nil {
		slog.WarnContext(ctx, "Institution lookup failed, serving account without institution name",
			"institution_id", account.InstitutionID, "error", err)
	}

	return AccountView{
		ID:               la.ID,
		Name:             account.Name,
		OfficialName:     account.OfficialName,
		Mask:             account.Mask,
		Type:             account.Type,
		Subtype:          account.Subtype,
		InstitutionID:    account.InstitutionID,
		InstitutionName:  institution.Name,
		AvailableBalance: account.AvailableBalance,
		CurrentBalance:   account.CurrentBalance,
		ShareableID:      la.ShareableID,
	}, nil
}

func (s *AccountService) institution(ctx context.Context, id string) (providers.Institution, error) {
	if cached, ok := s.institutions.Get(id); ok {
		return cached, nil
	}
	institution, err := s.aggregator.GetInstitution(ctx, id)
	if err != nil {
		return providers.Institution{}, err
	}
	s.institutions.Set(id, institution)
	return institution, nil
}
