// Package storage is the SQLite persistence adapter. It implements every
// store port in internal/banking on a single database handle, with embedded
// migrations applied on open.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kovara/internal/banking"
	"kovara/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser implements banking.UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name,
			address1, city, state, postal_code, date_of_birth, ssn,
			payments_customer_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Address1, u.City, u.State, u.PostalCode, u.DateOfBirth, u.SSN,
		u.PaymentsCustomerURL, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return banking.ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE email = ?", email))
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE id = ?", id))
}

const userSelect = `
	SELECT id, email, password_hash, first_name, last_name,
	       address1, city, state, postal_code, date_of_birth, ssn,
	       payments_customer_url, created_at
	FROM users`

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Address1, &u.City, &u.State, &u.PostalCode, &u.DateOfBirth, &u.SSN,
		&u.PaymentsCustomerURL, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, banking.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// CreateSession implements banking.SessionStore.
func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (core.Session, error) {
	var s core.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT token, user_id, expires_at, created_at
		FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, banking.ErrNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateLinkedAccount implements banking.AccountStore.
func (r *SQLiteRepository) CreateLinkedAccount(ctx context.Context, a core.LinkedAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO linked_accounts (
			id, user_id, provider_item_id, provider_account_id,
			access_token, funding_source_url, shareable_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ProviderItemID, a.ProviderAccountID,
		a.AccessToken, a.FundingSourceURL, a.ShareableID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create linked account: %w", err)
	}

	slog.InfoContext(ctx, "Linked account created", "account_id", a.ID, "user_id", a.UserID)
	return nil
}

const linkedAccountSelect = `
	SELECT id, user_id, provider_item_id, provider_account_id,
	       access_token, funding_source_url, shareable_id, created_at
	FROM linked_accounts`

func (r *SQLiteRepository) ListLinkedAccounts(ctx context.Context, userID string) ([]core.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx, linkedAccountSelect+" WHERE user_id = ? ORDER BY created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("list linked accounts: %w", err)
	}
	defer rows.Close()

	// Callers rely on a non-nil empty slice when nothing is linked.
	accounts := []core.LinkedAccount{}
	for rows.Next() {
		var a core.LinkedAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProviderItemID, &a.ProviderAccountID,
			&a.AccessToken, &a.FundingSourceURL, &a.ShareableID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan linked account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked accounts: %w", err)
	}
	return accounts, nil
}

func (r *SQLiteRepository) GetLinkedAccount(ctx context.Context, id string) (core.LinkedAccount, error) {
	return r.scanLinkedAccount(r.db.QueryRowContext(ctx, linkedAccountSelect+" WHERE id = ?", id))
}

func (r *SQLiteRepository) GetLinkedAccountByShareableID(ctx context.Context, shareableID string) (core.LinkedAccount, error) {
	return r.scanLinkedAccount(r.db.QueryRowContext(ctx, linkedAccountSelect+" WHERE shareable_id = ?", shareableID))
}

func (r *SQLiteRepository) scanLinkedAccount(row *sql.Row) (core.LinkedAccount, error) {
	var a core.LinkedAccount
	err := row.Scan(&a.ID, &a.UserID, &a.ProviderItemID, &a.ProviderAccountID,
		&a.AccessToken, &a.FundingSourceURL, &a.ShareableID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LinkedAccount{}, banking.ErrNotFound
	}
	if err != nil {
		return core.LinkedAccount{}, fmt.Errorf("scan linked account: %w", err)
	}
	return a, nil
}

// CreateTransaction implements banking.TransactionStore.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	var date any
	if !tx.Date.IsZero() {
		date = tx.Date
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, sender_bank_id, receiver_bank_id, amount_cents,
			name, email, channel, category, status, transfer_url, date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.SenderBankID, tx.ReceiverBankID, tx.Amount.Cents,
		tx.Name, tx.Email, tx.Channel, tx.Category, string(tx.Status), tx.TransferURL, date, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", tx.ID,
		"sender_bank_id", tx.SenderBankID,
		"receiver_bank_id", tx.ReceiverBankID,
		"amount_cents", tx.Amount.Cents)
	return nil
}

const transactionSelect = `
	SELECT id, sender_bank_id, receiver_bank_id, amount_cents,
	       name, email, channel, category, status, transfer_url, date, created_at
	FROM transactions`

// ListTransactionsForAccount fetches the account's transactions as two
// explicit queries, one per direction, merged in memory. Keeping the fetches
// separate means a regression in one direction's query shows up in tests as a
// missing side rather than a silently wrong total.
func (r *SQLiteRepository) ListTransactionsForAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	asSender, err := r.queryTransactions(ctx, transactionSelect+" WHERE sender_bank_id = ?", accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions as sender: %w", err)
	}
	asReceiver, err := r.queryTransactions(ctx, transactionSelect+" WHERE receiver_bank_id = ?", accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions as receiver: %w", err)
	}
	return append(asSender, asReceiver...), nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, transactionSelect+" WHERE id = ?", id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
		}
		return core.Transaction{}, banking.ErrNotFound
	}
	return scanTransaction(rows)
}

func (r *SQLiteRepository) UpdateTransactionStatus(ctx context.Context, id string, status core.TransactionStatus) error {
	res, err := r.db.ExecContext(ctx, "UPDATE transactions SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if affected == 0 {
		return banking.ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction status updated", "transaction_id", id, "status", string(status))
	return nil
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var (
		tx     core.Transaction
		status string
		date   sql.NullTime
	)
	if err := rows.Scan(&tx.ID, &tx.SenderBankID, &tx.ReceiverBankID, &tx.Amount.Cents,
		&tx.Name, &tx.Email, &tx.Channel, &tx.Category, &status, &tx.TransferURL, &date, &tx.CreatedAt); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Status = core.TransactionStatus(status)
	if date.Valid {
		tx.Date = date.Time
	}
	return tx, nil
}

// DeleteExpiredSessions removes sessions that expired before cutoff. Called
// periodically by the worker.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// ListTransactionsByStatus returns up to limit transactions in the given
// status, oldest first. Used by the settlement worker to find work.
func (r *SQLiteRepository) ListTransactionsByStatus(ctx context.Context, status core.TransactionStatus, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+" WHERE status = ? ORDER BY created_at LIMIT ?",
		string(status), limit)
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text;
	// the driver does not export a typed error for them.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
