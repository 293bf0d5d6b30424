// Package banking declares the ports for outbound persistence adapters. The
// services orchestrate against these interfaces so none of the domain logic
// carries a compile-time dependency on a particular backend.
package banking

import (
	"context"
	"errors"

	"kovara/internal/core"
)

// ErrLookupFailure marks a backend failure during a read. Callers surface it
// as a system fault; it is never used for "legitimately empty" results.
var ErrLookupFailure = errors.New("backend lookup failed")

// ErrNotFound marks a single-record lookup that matched nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail marks a CreateUser call whose email is already taken.
var ErrDuplicateEmail = errors.New("email already registered")

type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		GetSession(ctx context.Context, token string) (core.Session, error)
		DeleteSession(ctx context.Context, token string) error
	}

	// AccountStore persists linked bank accounts. ListLinkedAccounts returns
	// an empty slice, not an error, when the user has no linked accounts.
	AccountStore interface {
		CreateLinkedAccount(ctx context.Context, a core.LinkedAccount) error
		ListLinkedAccounts(ctx context.Context, userID string) ([]core.LinkedAccount, error)
		GetLinkedAccount(ctx context.Context, id string) (core.LinkedAccount, error)
		GetLinkedAccountByShareableID(ctx context.Context, shareableID string) (core.LinkedAccount, error)
	}

	// TransactionStore persists internal transfer records.
	// ListTransactionsForAccount returns every transaction where the account
	// is sender or receiver, in no particular order.
	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) error
		ListTransactionsForAccount(ctx context.Context, accountID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransactionStatus(ctx context.Context, id string, status core.TransactionStatus) error
	}
)
