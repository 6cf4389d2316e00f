package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"turbodriver/internal/tracking"
)

// IdentityStore persists driver/admin identities and their bearer
// tokens, generalizing the teacher's identities table to
// tracking.Driver/tracking.IdentityRole.
type IdentityStore struct {
	pool *pgxpool.Pool
}

// NewIdentityStore wraps an existing pool.
func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

// Save issues or refreshes a token for driver, expiring after ttl (0 = never).
func (s *IdentityStore) Save(ctx context.Context, driver tracking.Driver, token string, ttl time.Duration) (*time.Time, error) {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO identities (id, name, phone, role, token, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, role = EXCLUDED.role, token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
`, driver.ID, driver.Name, driver.Phone, string(driver.Role), token, expires)
	return expires, err
}

// Lookup resolves a driver by bearer token, rejecting expired tokens.
func (s *IdentityStore) Lookup(ctx context.Context, token string) (tracking.Driver, bool, error) {
	var (
		driver  tracking.Driver
		role    string
		expires *time.Time
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, name, phone, role, expires_at FROM identities WHERE token = $1
`, token).Scan(&driver.ID, &driver.Name, &driver.Phone, &role, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracking.Driver{}, false, nil
		}
		return tracking.Driver{}, false, err
	}
	if expires != nil && expires.Before(time.Now()) {
		return tracking.Driver{}, false, nil
	}
	driver.Role = tracking.IdentityRole(role)
	return driver, true, nil
}
