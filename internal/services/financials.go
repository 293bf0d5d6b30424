// Package services holds the application services that orchestrate the store
// ports and vendor platforms on behalf of the HTTP layer.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"kovara/internal/banking"
	"kovara/internal/core"
)

// ErrNoLinkedAccounts is the reported condition for a user with nothing
// linked. The HTTP layer turns it into a client-visible message rather than a
// server fault.
var ErrNoLinkedAccounts = errors.New("no linked bank accounts")

// FinancialsService computes the current-month income and expense report
// across all of a user's linked accounts.
type FinancialsService struct {
	accounts     banking.AccountStore
	transactions banking.TransactionStore
}

func NewFinancialsService(accounts banking.AccountStore, transactions banking.TransactionStore) *FinancialsService {
	return &FinancialsService{accounts: accounts, transactions: transactions}
}

// CurrentMonthReport aggregates every transaction touching the user's linked
// accounts within the month containing now. Per-account fetches run
// concurrently; any lookup failure aborts the whole report, so a partial
// month is never presented as complete.
func (s *FinancialsService) CurrentMonthReport(ctx context.Context, userID string, now time.Time) (core.MonthlyFinancialReport, error) {
	if userID == "" {
		return core.MonthlyFinancialReport{}, core.ErrEmptyUserID
	}

	accounts, err := s.accounts.ListLinkedAccounts(ctx, userID)
	if err != nil {
		return core.MonthlyFinancialReport{}, fmt.Errorf("%w: list linked accounts: %w", banking.ErrLookupFailure, err)
	}
	if len(accounts) == 0 {
		return core.MonthlyFinancialReport{}, ErrNoLinkedAccounts
	}

	period := core.CurrentMonthPeriod(now)

	tallies := make([]core.ReportTally, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	for i, account := range accounts {
		g.Go(func() error {
			txs, err := s.transactions.ListTransactionsForAccount(gctx, account.ID)
			if err != nil {
				return fmt.Errorf("%w: transactions for account %s: %w", banking.ErrLookupFailure, account.ID, err)
			}
			for _, tx := range txs {
				tallies[i].Add(core.Classify(tx, account.ID, period), tx.Amount)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.MonthlyFinancialReport{}, err
	}

	var total core.ReportTally
	for _, t := range tallies {
		total.Merge(t)
	}

	report := total.Report(period)
	slog.InfoContext(ctx, "Monthly financial report computed",
		"user_id", userID,
		"accounts", len(accounts),
		"month", period.Month,
		"year", period.Year,
		"income_cents", report.TotalIncome.Cents,
		"expenses_cents", report.TotalExpenses.Cents,
		"transactions", report.TransactionCount.Total)
	return report, nil
}
