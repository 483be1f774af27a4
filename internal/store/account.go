package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const accountColumns = `id, full_name, email, phone, role, password_hash, provider, address, gender,
		dob, password_reset_code, password_reset_expires, created_at, updated_at`

// AccountRepository handles persistence for accounts in PostgreSQL.
type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return types.Account{}, ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, parsed.String()))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, types.NormalizeEmail(email)))
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := r.now().UTC()
	account.ID = uuid.NewString()
	account.Email = types.NormalizeEmail(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO accounts (id, full_name, email, phone, role, password_hash, provider, address, gender,
			dob, password_reset_code, password_reset_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.FullName,
		account.Email,
		account.Phone,
		string(account.Role),
		account.PasswordHash,
		string(account.Provider),
		account.Address,
		string(account.Gender),
		nullTime(account.DateOfBirth),
		nullString(account.PasswordResetCode),
		nullTime(account.PasswordResetExpires),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Account{}, ErrConflict
		}
		return types.Account{}, err
	}
	return account, nil
}

// UpdateProfile overwrites every mutable profile field of the account.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, update types.ProfileUpdate) (types.Account, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return types.Account{}, ErrNotFound
	}

	query := `
		UPDATE accounts
		SET full_name = $1,
			phone = $2,
			address = $3,
			gender = $4,
			dob = $5,
			updated_at = $6
		WHERE id = $7
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(
		ctx,
		query,
		update.FullName,
		update.Phone,
		update.Address,
		string(update.Gender),
		nullTime(update.DateOfBirth),
		r.now().UTC(),
		parsed.String(),
	))
}

func scanAccount(row *sql.Row) (types.Account, error) {
	var (
		account      types.Account
		role         string
		provider     string
		gender       string
		dob          sql.NullTime
		resetCode    sql.NullString
		resetExpires sql.NullTime
	)
	err := row.Scan(
		&account.ID,
		&account.FullName,
		&account.Email,
		&account.Phone,
		&role,
		&account.PasswordHash,
		&provider,
		&account.Address,
		&gender,
		&dob,
		&resetCode,
		&resetExpires,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	account.Role = types.Role(role)
	account.Provider = types.AuthProvider(provider)
	account.Gender = types.Gender(gender)
	if dob.Valid {
		t := dob.Time.UTC()
		account.DateOfBirth = &t
	}
	if resetCode.Valid {
		account.PasswordResetCode = resetCode.String
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		account.PasswordResetExpires = &t
	}
	return account, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
