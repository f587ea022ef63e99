package repositories

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/dmcneil/storefront/internal/database"
	"github.com/dmcneil/storefront/internal/models"
)

const principalColumns = `
	id, phone, email, password_hash, role, permissions, status,
	failed_otp_attempts, locked_until,
	verification_code_hash, verification_expires_at, verification_requested_at,
	totp_secret, totp_secret_nonce, totp_enabled,
	created_at, updated_at
`

type PrincipalRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewPrincipalRepository(db *database.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning principal rows (single row or rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPrincipalRow handles nullable fields and populates a Principal from a
// database row
func scanPrincipalRow(scanner rowScanner) (*models.Principal, error) {
	var p models.Principal
	var permissions []string

	err := scanner.Scan(
		&p.ID, &p.Phone, &p.Email, &p.PasswordHash, &p.Role, pq.Array(&permissions), &p.Status,
		&p.FailedOTPAttempts, &p.LockedUntil,
		&p.VerificationCodeHash, &p.VerificationExpiresAt, &p.VerificationRequested,
		&p.TOTPSecretEncrypted, &p.TOTPSecretNonce, &p.TOTPEnabled,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	p.Permissions = permissions
	return &p, nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id int64) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE id = $1`, principalColumns)
	return scanPrincipalRow(r.pool.QueryRow(ctx, query, id))
}

func (r *PrincipalRepository) GetByPhone(ctx context.Context, phone string) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE phone = $1`, principalColumns)
	return scanPrincipalRow(r.pool.QueryRow(ctx, query, phone))
}

func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE email = $1`, principalColumns)
	return scanPrincipalRow(r.pool.QueryRow(ctx, query, email))
}

// GetOrCreateByPhone returns the customer principal for a phone number,
// creating an active customer row on first contact. The upsert keeps
// concurrent first requests from racing into a unique violation.
func (r *PrincipalRepository) GetOrCreateByPhone(ctx context.Context, phone string) (*models.Principal, error) {
	query := fmt.Sprintf(`
		INSERT INTO principals (phone, role, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (phone) DO UPDATE SET updated_at = now()
		RETURNING %s
	`, principalColumns)

	return scanPrincipalRow(r.pool.QueryRow(ctx, query, phone, models.RoleCustomer))
}

// CreateStaff inserts a back-office principal
func (r *PrincipalRepository) CreateStaff(ctx context.Context, email, passwordHash string, role models.Role, permissions []string) (*models.Principal, error) {
	query := fmt.Sprintf(`
		INSERT INTO principals (email, password_hash, role, permissions, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING %s
	`, principalColumns)

	return scanPrincipalRow(r.pool.QueryRow(ctx, query, email, passwordHash, role, pq.Array(permissions)))
}

// SetChallenge stores a pending verification code hash with its expiry and
// request time
func (r *PrincipalRepository) SetChallenge(ctx context.Context, id int64, codeHash string, expiresAt, requestedAt time.Time) error {
	query := `
		UPDATE principals
		SET verification_code_hash = $1, verification_expires_at = $2,
		    verification_requested_at = $3, updated_at = now()
		WHERE id = $4
	`

	result, err := r.pool.Exec(ctx, query, codeHash, expiresAt, requestedAt, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearChallenge drops any pending verification code. Used to roll back a
// stored challenge when delivery fails, so the cooldown does not count a
// code the customer never received.
func (r *PrincipalRepository) ClearChallenge(ctx context.Context, id int64) error {
	query := `
		UPDATE principals
		SET verification_code_hash = NULL, verification_expires_at = NULL,
		    verification_requested_at = NULL, updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// VerifyChallenge checks a presented code hash against the stored challenge
// and applies the attempt-counting policy, all under a row lock so
// concurrent attempts cannot both consume the last try.
//
// The call that pushes failed attempts to maxAttempts reports Mismatch and
// engages the lockout, zeroing the stored counter so the principal has a
// full allowance once the lockout passes; calls arriving while locked
// report LockedOut without touching the counter.
func (r *PrincipalRepository) VerifyChallenge(ctx context.Context, id int64, presentedHash string, now time.Time, maxAttempts int, lockout time.Duration) (*models.ChallengeResult, error) {
	var result *models.ChallengeResult

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var storedHash *string
		var expiresAt, lockedUntil *time.Time
		var attempts int

		query := `
			SELECT verification_code_hash, verification_expires_at, failed_otp_attempts, locked_until
			FROM principals WHERE id = $1
			FOR UPDATE
		`
		err := tx.QueryRow(ctx, query, id).Scan(&storedHash, &expiresAt, &attempts, &lockedUntil)
		if err != nil {
			return database.MapPostgresError(err)
		}

		if lockedUntil != nil && now.Before(*lockedUntil) {
			result = &models.ChallengeResult{
				Outcome:     models.ChallengeLockedOut,
				Attempts:    attempts,
				LockedUntil: lockedUntil,
			}
			return nil
		}

		if storedHash == nil || expiresAt == nil || now.After(*expiresAt) {
			result = &models.ChallengeResult{
				Outcome:  models.ChallengeExpired,
				Attempts: attempts,
			}
			return nil
		}

		if subtle.ConstantTimeCompare([]byte(*storedHash), []byte(presentedHash)) == 1 {
			consume := `
				UPDATE principals
				SET verification_code_hash = NULL, verification_expires_at = NULL,
				    verification_requested_at = NULL, failed_otp_attempts = 0,
				    locked_until = NULL, updated_at = now()
				WHERE id = $1
			`
			if _, err := tx.Exec(ctx, consume, id); err != nil {
				return database.MapPostgresError(err)
			}
			result = &models.ChallengeResult{Outcome: models.ChallengeConsumed}
			return nil
		}

		attempts++
		storedAttempts := attempts
		var newLockedUntil *time.Time
		if attempts >= maxAttempts {
			until := now.Add(lockout)
			newLockedUntil = &until
			// Engaging the lockout spends the counter; once the window
			// passes the principal gets a full fresh allowance.
			storedAttempts = 0
		}

		record := `
			UPDATE principals
			SET failed_otp_attempts = $1, locked_until = $2, updated_at = now()
			WHERE id = $3
		`
		if _, err := tx.Exec(ctx, record, storedAttempts, newLockedUntil, id); err != nil {
			return database.MapPostgresError(err)
		}

		result = &models.ChallengeResult{
			Outcome:     models.ChallengeMismatch,
			Attempts:    attempts,
			LockedUntil: newLockedUntil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SetTOTPSecret stores a freshly enrolled (not yet activated) encrypted
// TOTP secret
func (r *PrincipalRepository) SetTOTPSecret(ctx context.Context, id int64, encrypted, nonce []byte) error {
	query := `
		UPDATE principals
		SET totp_secret = $1, totp_secret_nonce = $2, totp_enabled = false, updated_at = now()
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, encrypted, nonce, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ActivateTOTP marks the enrolled secret as confirmed, making TOTP
// mandatory on subsequent logins
func (r *PrincipalRepository) ActivateTOTP(ctx context.Context, id int64) error {
	query := `
		UPDATE principals
		SET totp_enabled = true, updated_at = now()
		WHERE id = $1 AND totp_secret IS NOT NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePermissions replaces a staff principal's permission set
func (r *PrincipalRepository) UpdatePermissions(ctx context.Context, id int64, permissions []string) error {
	query := `
		UPDATE principals
		SET permissions = $1, updated_at = now()
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, pq.Array(permissions), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountByRole reports how many principals hold a role. Used at startup to
// decide whether an owner account must be seeded.
func (r *PrincipalRepository) CountByRole(ctx context.Context, role models.Role) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM principals WHERE role = $1`, role).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}
