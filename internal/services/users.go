package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kovara/internal/banking"
	"kovara/internal/core"
	"kovara/internal/providers"
)

// ErrInvalidCredentials covers both unknown email and wrong password so a
// sign-in failure never reveals which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrSessionExpired marks a session token past its expiry.
var ErrSessionExpired = errors.New("session expired")

// UserService handles registration, sign-in and session management. Sign-up
// creates the payments customer before anything is persisted locally, so a
// user record never exists without a customer to attach funding sources to.
type UserService struct {
	users      banking.UserStore
	sessions   banking.SessionStore
	payments   providers.PaymentsGateway
	sessionTTL time.Duration
}

func NewUserService(users banking.UserStore, sessions banking.SessionStore, payments providers.PaymentsGateway, sessionTTL time.Duration) *UserService {
	return &UserService{
		users:      users,
		sessions:   sessions,
		payments:   payments,
		sessionTTL: sessionTTL,
	}
}

func (s *UserService) SignUp(ctx context.Context, p core.SignUpParams) (core.User, core.Session, error) {
	if err := p.Validate(); err != nil {
		return core.User{}, core.Session{}, err
	}

	customerURL, err := s.payments.CreateCustomer(ctx, providers.CustomerParams{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		Type:        "personal",
		Address1:    p.Address1,
		City:        p.City,
		State:       p.State,
		PostalCode:  p.PostalCode,
		DateOfBirth: p.DateOfBirth,
		SSN:         p.SSN,
	})
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("create payments customer: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := core.User{
		ID:                  uuid.NewString(),
		Email:               p.Email,
		PasswordHash:        string(hash),
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		Address1:            p.Address1,
		City:                p.City,
		State:               p.State,
		PostalCode:          p.PostalCode,
		DateOfBirth:         p.DateOfBirth,
		SSN:                 p.SSN,
		PaymentsCustomerURL: customerURL,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return core.User{}, core.Session{}, err
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return core.User{}, core.Session{}, err
	}

	slog.InfoContext(ctx, "User signed up", "user_id", user.ID)
	return user, session, nil
}

func (s *UserService) SignIn(ctx context.Context, email, password string) (core.User, core.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, banking.ErrNotFound) {
		return core.User{}, core.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("%w: get user: %w", banking.ErrLookupFailure, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, core.Session{}, ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return core.User{}, core.Session{}, err
	}

	slog.InfoContext(ctx, "User signed in", "user_id", user.ID)
	return user, session, nil
}

func (s *UserService) SignOut(ctx context.Context, token string) error {
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its user. Expired sessions are
// deleted as a side effect.
func (s *UserService) Authenticate(ctx context.Context, token string) (core.User, error) {
	session, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, banking.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("%w: get session: %w", banking.ErrLookupFailure, err)
	}

	if time.Now().After(session.ExpiresAt) {
		if err := s.sessions.DeleteSession(ctx, token); err != nil {
			slog.WarnContext(ctx, "Failed to delete expired session", "error", err)
		}
		return core.User{}, ErrSessionExpired
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: get user: %w", banking.ErrLookupFailure, err)
	}
	return user, nil
}

func (s *UserService) startSession(ctx context.Context, userID string) (core.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return core.Session{}, err
	}

	now := time.Now().UTC()
	session := core.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return core.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
