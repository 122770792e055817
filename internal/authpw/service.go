// Package authpw provides email/password authentication for board principals.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

// Service provides email/password authentication
type Service struct {
	store PrincipalStore
}

// PrincipalStore defines the storage interface for auth
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p store.Principal) (store.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (store.Principal, error)
	GetPrincipalByID(ctx context.Context, id string) (store.Principal, error)
}

// NewService creates a new auth service
func NewService(store PrincipalStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates a new principal account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Principal, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return store.Principal{}, errors.New("email, password, and display name are required")
	}
	if !strings.Contains(req.Email, "@") {
		return store.Principal{}, errors.New("email address is not valid")
	}
	if len(req.Password) < 8 {
		return store.Principal{}, errors.New("password must be at least 8 characters")
	}

	// Check if email already exists
	if _, err := s.store.GetPrincipalByEmail(ctx, req.Email); err == nil {
		return store.Principal{}, errors.New("email already registered")
	} else if !store.IsNotFound(err) {
		return store.Principal{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	p, err := s.store.CreatePrincipal(ctx, store.Principal{
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		return store.Principal{}, fmt.Errorf("create principal: %w", err)
	}
	return p, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// ErrInvalidCredentials is returned when email/password do not match an account.
var ErrInvalidCredentials = errors.New("invalid email or password")

// SignIn authenticates a principal
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Principal, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Email == "" || req.Password == "" {
		return store.Principal{}, errors.New("email and password are required")
	}

	p, err := s.store.GetPrincipalByEmail(ctx, req.Email)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Principal{}, ErrInvalidCredentials
		}
		return store.Principal{}, fmt.Errorf("look up principal: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		return store.Principal{}, ErrInvalidCredentials
	}
	return p, nil
}
