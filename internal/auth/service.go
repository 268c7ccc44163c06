package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Token, *User, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Token{}, nil, err
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return Token{}, nil, err
	}
	return token, user, nil
}

// Me returns the active user behind a principal.
func (s *Service) Me(ctx context.Context, p Principal) (*User, error) {
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

// EnsureUserInput describes a user to create or reset.
type EnsureUserInput struct {
	Email    string
	Name     string
	Password string
	Role     Role
}

// EnsureUser creates the user or resets its password and role.
func (s *Service) EnsureUser(ctx context.Context, input EnsureUserInput) (int64, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return 0, errors.New("auth: valid email required")
	}
	if len(input.Password) < 8 {
		return 0, errors.New("auth: password must be at least 8 characters")
	}
	if !input.Role.Valid() {
		return 0, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("auth: hash password: %w", err)
	}
	name := input.Name
	if name == "" {
		name = email
	}
	return s.repo.Upsert(ctx, User{Email: email, Name: name, PasswordHash: string(hash), Role: input.Role, IsActive: true})
}
