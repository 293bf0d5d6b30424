package core

import (
	"errors"
	"strings"
	"testing"
)

func validSignUp() SignUpParams {
	return SignUpParams{
		Email:       "jane@example.com",
		Password:    "correct-horse",
		FirstName:   "Jane",
		LastName:    "Doe",
		Address1:    "123 Main St",
		City:        "New York",
		State:       "NY",
		PostalCode:  "10001",
		DateOfBirth: "1990-01-01",
		SSN:         "123-45-6789",
	}
}

func TestSignUpParamsValidate(t *testing.T) {
	if err := validSignUp().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	t.Run("bad email", func(t *testing.T) {
		p := validSignUp()
		p.Email = "not-an-email"
		if err := p.Validate(); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		p := validSignUp()
		p.Password = "short"
		if err := p.Validate(); !errors.Is(err, ErrPasswordTooShort) {
			t.Fatalf("expected ErrPasswordTooShort, got %v", err)
		}
	})

	t.Run("missing city", func(t *testing.T) {
		p := validSignUp()
		p.City = "  "
		err := p.Validate()
		if err == nil || !strings.Contains(err.Error(), "city") {
			t.Fatalf("expected city error, got %v", err)
		}
	})

	t.Run("bad date of birth", func(t *testing.T) {
		p := validSignUp()
		p.DateOfBirth = "01/01/1990"
		if err := p.Validate(); err == nil {
			t.Fatalf("expected error for bad date format")
		}
	})
}

func TestTransferParamsValidate(t *testing.T) {
	valid := TransferParams{
		SenderShareableID:   "c2hhcmUtYQ",
		ReceiverShareableID: "c2hhcmUtYg",
		Amount:              Money{Cents: 25000},
		Name:                "Rent",
		Email:               "landlord@example.com",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TransferParams)
		want   error
	}{
		{"zero amount", func(p *TransferParams) { p.Amount = Money{} }, ErrInvalidAmount},
		{"same account", func(p *TransferParams) { p.ReceiverShareableID = p.SenderShareableID }, ErrSameAccount},
		{"empty note", func(p *TransferParams) { p.Name = "" }, ErrEmptyName},
		{"bad email", func(p *TransferParams) { p.Email = "nope" }, ErrInvalidEmail},
		{"missing sender", func(p *TransferParams) { p.SenderShareableID = "" }, ErrMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			if err := p.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("long note", func(t *testing.T) {
		p := valid
		p.Name = strings.Repeat("x", 201)
		if err := p.Validate(); err == nil {
			t.Fatalf("expected error for long note")
		}
	})
}
