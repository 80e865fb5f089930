package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenManager
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

// LoginResult is returned after a successful password login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Principal `json:"user"`
}

// Login validates email/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	emp, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !emp.IsActive || emp.PasswordHash == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(emp)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.repo.TouchLastLogin(ctx, emp.ID, s.now().UTC()); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expires, User: principalOf(emp)}, nil
}

// Authenticate resolves a raw bearer token into a principal. The permission
// level comes from the current employee row, not from the token.
func (s *Service) Authenticate(ctx context.Context, raw string) (Principal, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err)
	}
	emp, err := s.repo.FindActiveByID(ctx, claims.EmployeeID())
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Principal{}, fmt.Errorf("%w: 사용자를 찾을 수 없습니다", httpx.ErrUnauthorized)
		}
		return Principal{}, err
	}
	return principalOf(emp), nil
}

// IssueFor signs a token for an existing active employee. Used by the admin CLI.
func (s *Service) IssueFor(ctx context.Context, id string) (string, time.Time, error) {
	emp, err := s.repo.FindActiveByID(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Issue(emp)
}

// HashPassword produces a bcrypt hash for seeding employees.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func principalOf(emp Employee) Principal {
	return Principal{
		UserID:          emp.ID,
		Name:            emp.Name,
		Email:           emp.Email,
		PermissionLevel: emp.PermissionLevel,
	}
}
