package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/facility-checkin/internal/model"
	"github.com/iliyamo/facility-checkin/internal/utils"
)

// StaffRepo persists staff accounts in the 'staff_accounts' table.
type StaffRepo struct{ DB *sql.DB }

func NewStaffRepo(db *sql.DB) *StaffRepo { return &StaffRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create inserts a staff account and returns its ID.
func (r *StaffRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO staff_accounts (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a staff account by normalized email.
func (r *StaffRepo) GetByEmail(ctx context.Context, email string) (model.StaffAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var s model.StaffAccount
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM staff_accounts WHERE email=? LIMIT 1",
		email).Scan(&s.ID, &s.Email, &s.PasswordHash, &s.Role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// GetByID fetches a staff account by id.
func (r *StaffRepo) GetByID(ctx context.Context, id uint64) (model.StaffAccount, error) {
	var s model.StaffAccount
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM staff_accounts WHERE id=? LIMIT 1",
		id).Scan(&s.ID, &s.Email, &s.PasswordHash, &s.Role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
