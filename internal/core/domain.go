package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Transaction lifecycle states. Internal transfers start as processing and
// move to settled or failed once the payments network reports back.
const (
	StatusProcessing TransactionStatus = "processing"
	StatusSettled    TransactionStatus = "settled"
	StatusFailed     TransactionStatus = "failed"
)

const (
	ChannelOnline = "online"

	CategoryTransfer = "transfer"
)

type (
	TransactionStatus string

	// User is a registered dashboard user. PaymentsCustomerURL points at the
	// customer record on the payments platform; it is created during sign-up
	// and required before any funding source can be attached.
	User struct {
		ID                  string
		Email               string
		PasswordHash        string
		FirstName           string
		LastName            string
		Address1            string
		City                string
		State               string
		PostalCode          string
		DateOfBirth         string // YYYY-MM-DD
		SSN                 string
		PaymentsCustomerURL string
		CreatedAt           time.Time
	}

	// LinkedAccount is one bank account a user connected through the
	// aggregation platform. Immutable after linking.
	LinkedAccount struct {
		ID                string
		UserID            string
		ProviderItemID    string
		ProviderAccountID string
		AccessToken       string
		FundingSourceURL  string
		ShareableID       string
		CreatedAt         time.Time
	}

	// Transaction is a single money movement between two linked accounts.
	// Amount is an unsigned magnitude; direction relative to an account is
	// derived from which of SenderBankID/ReceiverBankID matches it.
	Transaction struct {
		ID             string
		SenderBankID   string
		ReceiverBankID string
		Amount         Money
		Name           string
		Email          string
		Channel        string
		Category       string
		Status         TransactionStatus
		TransferURL    string
		Date           time.Time
		CreatedAt      time.Time
	}

	// Session is an authenticated browser session backing the session cookie.
	Session struct {
		Token     string
		UserID    string
		ExpiresAt time.Time
		CreatedAt time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrEmptyUserID      = errors.New("empty user id")
	ErrEmptyName        = errors.New("empty transfer note")
	ErrSameAccount      = errors.New("sender and receiver are the same account")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidField     = errors.New("invalid field")
)

// SignUpParams carries the sign-up payload. The password travels in clear
// only as far as the users service, which hashes it immediately.
type SignUpParams struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Address1    string
	City        string
	State       string
	PostalCode  string
	DateOfBirth string
	SSN         string
}

func (p SignUpParams) Validate() error {
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return ErrInvalidEmail
	}
	if len(p.Password) < 8 {
		return ErrPasswordTooShort
	}
	for _, f := range []struct{ name, value string }{
		{"firstName", p.FirstName},
		{"lastName", p.LastName},
		{"address1", p.Address1},
		{"city", p.City},
		{"state", p.State},
		{"postalCode", p.PostalCode},
		{"dateOfBirth", p.DateOfBirth},
		{"ssn", p.SSN},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s: %w", f.name, ErrMissingField)
		}
	}
	if _, err := time.Parse("2006-01-02", p.DateOfBirth); err != nil {
		return fmt.Errorf("%w: dateOfBirth must be YYYY-MM-DD", ErrInvalidField)
	}
	return nil
}

// TransferParams is a request to move money between two linked accounts
// identified by their shareable IDs.
type TransferParams struct {
	SenderShareableID   string
	ReceiverShareableID string
	Amount              Money
	Name                string
	Email               string
}

func (p TransferParams) Validate() error {
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.SenderShareableID) == "" || strings.TrimSpace(p.ReceiverShareableID) == "" {
		return ErrMissingField
	}
	if p.SenderShareableID == p.ReceiverShareableID {
		return ErrSameAccount
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 200 {
		return fmt.Errorf("%w: transfer note too long (max 200 characters)", ErrInvalidField)
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}
