package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindActiveByID(ctx context.Context, id string) (Employee, error)
	FindByEmail(ctx context.Context, email string) (Employee, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{db: q}
}

const employeeColumns = `id::text, name, email, COALESCE(password_hash, ''), COALESCE(permission_level, 1), is_active, last_login_at`

// FindActiveByID loads an active employee by id.
func (r *PGRepository) FindActiveByID(ctx context.Context, id string) (Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id::text = $1 AND is_active = true`
	return r.scanOne(ctx, query, id)
}

// FindByEmail fetches an employee by email regardless of status.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE lower(email) = lower($1)`
	return r.scanOne(ctx, query, email)
}

// TouchLastLogin records a successful login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE employees SET last_login_at = $2 WHERE id::text = $1`, id, at)
	if err != nil {
		return fmt.Errorf("auth: touch last login: %w", err)
	}
	return nil
}

func (r *PGRepository) scanOne(ctx context.Context, query string, arg string) (Employee, error) {
	var emp Employee
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&emp.ID, &emp.Name, &emp.Email, &emp.PasswordHash, &emp.PermissionLevel, &emp.IsActive, &emp.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, httpx.ErrNotFound
		}
		return Employee{}, fmt.Errorf("auth: load employee: %w", err)
	}
	return emp, nil
}

var _ Repository = (*PGRepository)(nil)
