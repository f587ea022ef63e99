package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmcneil/storefront/internal/database"
	"github.com/dmcneil/storefront/internal/models"
)

type SessionRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db, pool: db.Pool}
}

// Create inserts a session and returns its id. The policy is applied inside
// the same transaction: invalidate deactivates the principal's prior active
// sessions, reject refuses the insert while a live unexpired session exists,
// shared leaves prior sessions alone. The reject check holds the principal
// row lock so two concurrent logins cannot both pass it.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session, policy models.SessionPolicy) (string, error) {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.Active = true
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		switch policy {
		case models.SessionPolicyInvalidate:
			deactivate := `UPDATE sessions SET active = false WHERE principal_id = $1 AND active`
			if _, err := tx.Exec(ctx, deactivate, session.PrincipalID); err != nil {
				return database.MapPostgresError(err)
			}
		case models.SessionPolicyReject:
			lock := `SELECT id FROM principals WHERE id = $1 FOR UPDATE`
			var id int64
			if err := tx.QueryRow(ctx, lock, session.PrincipalID).Scan(&id); err != nil {
				return database.MapPostgresError(err)
			}

			check := `
				SELECT EXISTS (
					SELECT 1 FROM sessions
					WHERE principal_id = $1 AND active AND expires_at > now()
				)
			`
			var exists bool
			if err := tx.QueryRow(ctx, check, session.PrincipalID).Scan(&exists); err != nil {
				return database.MapPostgresError(err)
			}
			if exists {
				return models.ErrSessionActive
			}
		}

		insert := `
			INSERT INTO sessions (id, principal_id, token_hash, ip_address, user_agent, created_at, expires_at, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		`
		_, err := tx.Exec(ctx, insert,
			session.ID, session.PrincipalID, session.TokenHash,
			session.IPAddress, session.UserAgent, session.CreatedAt, session.ExpiresAt,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return "", err
	}

	return session.ID, nil
}

// Validate checks that a session is live, unexpired, and bound to both the
// presenting principal and the presented credential, and touches its
// last-activity timestamp. Any mismatch yields ErrSessionInvalid.
func (r *SessionRepository) Validate(ctx context.Context, sessionID string, principalID int64, tokenHash string) error {
	query := `
		UPDATE sessions
		SET last_activity_at = now()
		WHERE id = $1 AND principal_id = $2 AND token_hash = $3
		  AND active AND expires_at > now()
	`

	result, err := r.pool.Exec(ctx, query, sessionID, principalID, tokenHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrSessionInvalid
	}
	return nil
}

// Invalidate deactivates one session. The principal id guard keeps a
// logout request from touching another principal's session.
func (r *SessionRepository) Invalidate(ctx context.Context, sessionID string, principalID int64) error {
	query := `UPDATE sessions SET active = false WHERE id = $1 AND principal_id = $2 AND active`

	result, err := r.pool.Exec(ctx, query, sessionID, principalID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// InvalidateAll deactivates every live session of a principal and returns
// how many were revoked
func (r *SessionRepository) InvalidateAll(ctx context.Context, principalID int64) (int64, error) {
	query := `UPDATE sessions SET active = false WHERE principal_id = $1 AND active`

	result, err := r.pool.Exec(ctx, query, principalID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// GetByID returns a session row regardless of state
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT id, principal_id, token_hash, ip_address, user_agent, created_at, expires_at, last_activity_at, active
		FROM sessions WHERE id = $1
	`

	var s models.Session
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&s.ID, &s.PrincipalID, &s.TokenHash, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt, &s.Active,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// ListActive returns a principal's live sessions, newest first
func (r *SessionRepository) ListActive(ctx context.Context, principalID int64) ([]*models.Session, error) {
	query := `
		SELECT id, principal_id, token_hash, ip_address, user_agent, created_at, expires_at, last_activity_at, active
		FROM sessions
		WHERE principal_id = $1 AND active AND expires_at > now()
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		var s models.Session
		err := rows.Scan(
			&s.ID, &s.PrincipalID, &s.TokenHash, &s.IPAddress, &s.UserAgent,
			&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt, &s.Active,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return sessions, nil
}

// DeleteExpired removes sessions past their expiry. Deactivated rows are
// kept until expiry so audit trails can still resolve recent session ids.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
