package model

import "time"

// StaffAccount represents a staff login as stored in the
// `staff_accounts` table.  Lane and checkout commands are always
// actioned by an authenticated staff member; customers never hold
// accounts of their own.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – STAFF or ADMIN.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type StaffAccount struct {
	ID           uint64    // staff_accounts.id
	Email        string    // staff_accounts.email
	PasswordHash string    // staff_accounts.password_hash
	Role         string    // staff_accounts.role
	IsActive     bool      // staff_accounts.is_active
	CreatedAt    time.Time // staff_accounts.created_at
	UpdatedAt    time.Time // staff_accounts.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a staff account; only the SHA-256 hash of
// the token value is stored.
//
// Fields:
//  ID        – primary key identifier.
//  StaffID   – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	StaffID   uint64     // refresh_tokens.staff_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
