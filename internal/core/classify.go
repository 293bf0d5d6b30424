package core

import "time"

// Classification is the per-transaction decision of how a transaction counts
// toward one account within one period.
type Classification int

const (
	// Excluded transactions contribute nothing: the date falls outside the
	// period, or neither side of the transaction matches the account.
	Excluded Classification = iota
	// Income means the account under evaluation received the money.
	Income
	// Expense means the account under evaluation sent the money.
	Expense
)

func (c Classification) String() string {
	switch c {
	case Income:
		return "income"
	case Expense:
		return "expense"
	default:
		return "excluded"
	}
}

// EffectiveDate returns the transaction's business date, falling back to the
// record-creation timestamp when the business date is absent. A transaction
// recorded late can be attributed to the wrong month through this fallback;
// the behavior is kept for compatibility with existing records.
func (t Transaction) EffectiveDate() time.Time {
	if t.Date.IsZero() {
		return t.CreatedAt
	}
	return t.Date
}

// Classify decides whether tx counts as income or expense for accountID
// within period p. Malformed transactions where neither side matches the
// account are tolerated as Excluded rather than raised as errors: one bad
// record must not abort an otherwise valid report.
func Classify(tx Transaction, accountID string, p MonthPeriod) Classification {
	if !p.Contains(tx.EffectiveDate()) {
		return Excluded
	}
	switch accountID {
	case tx.ReceiverBankID:
		return Income
	case tx.SenderBankID:
		return Expense
	default:
		return Excluded
	}
}
