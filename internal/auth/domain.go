package auth

import (
	"context"
	"errors"
	"time"
)

// Permission levels stored on employees.permission_level.
const (
	LevelGeneral    = 1
	LevelManager    = 2
	LevelAdmin      = 3
	LevelSuperAdmin = 4
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("이메일 또는 비밀번호가 올바르지 않습니다")
	// ErrInvalidToken covers malformed, forged and expired tokens.
	ErrInvalidToken = errors.New("유효하지 않은 토큰입니다")
)

// Employee is the persisted account a token refers to.
type Employee struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    string
	PermissionLevel int
	IsActive        bool
	LastLoginAt     *time.Time
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID          string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	PermissionLevel int    `json:"permission_level"`
}

// Allows reports whether the principal meets the minimum level.
func (p Principal) Allows(level int) bool {
	return p.PermissionLevel >= level
}

type principalKey struct{}

// ContextWithPrincipal stores the principal on the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
