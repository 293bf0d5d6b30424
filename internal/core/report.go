package core

// TransactionCount breaks down how many transactions fed each side of a
// monthly report. Total is always Income + Expenses.
type TransactionCount struct {
	Income   int `json:"income"`
	Expenses int `json:"expenses"`
	Total    int `json:"total"`
}

// MonthlyFinancialReport is the net-position summary for one user over one
// calendar month. It is computed fresh on every request and never persisted:
// a stale or partial report presented as current data is worse than an error.
type MonthlyFinancialReport struct {
	TotalIncome      Money            `json:"totalIncome"`
	TotalExpenses    Money            `json:"totalExpenses"`
	NetAmount        Money            `json:"netAmount"`
	TransactionCount TransactionCount `json:"transactionCount"`
	Period           MonthPeriod      `json:"period"`
}

// ReportTally accumulates classification results for one or more accounts.
// Merging tallies is plain summation, so per-account tallies computed
// independently can be combined in any order.
type ReportTally struct {
	Income        Money
	Expenses      Money
	IncomeCount   int
	ExpensesCount int
}

// Add records one classified transaction. Excluded classifications are
// ignored; the amount's magnitude always contributes positively to the
// selected bucket.
func (t *ReportTally) Add(c Classification, amount Money) {
	switch c {
	case Income:
		t.Income.Cents += amount.Abs().Cents
		t.IncomeCount++
	case Expense:
		t.Expenses.Cents += amount.Abs().Cents
		t.ExpensesCount++
	}
}

// Merge folds another tally into this one.
func (t *ReportTally) Merge(other ReportTally) {
	t.Income.Cents += other.Income.Cents
	t.Expenses.Cents += other.Expenses.Cents
	t.IncomeCount += other.IncomeCount
	t.ExpensesCount += other.ExpensesCount
}

// Report assembles the final report for the given period.
func (t ReportTally) Report(p MonthPeriod) MonthlyFinancialReport {
	return MonthlyFinancialReport{
		TotalIncome:   t.Income,
		TotalExpenses: t.Expenses,
		NetAmount:     Money{Cents: t.Income.Cents - t.Expenses.Cents},
		TransactionCount: TransactionCount{
			Income:   t.IncomeCount,
			Expenses: t.ExpensesCount,
			Total:    t.IncomeCount + t.ExpensesCount,
		},
		Period: p,
	}
}
