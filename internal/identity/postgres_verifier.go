package identity

import (
	"context"

	"turbodriver/internal/tracking"
)

// tokenLookup is the subset of *storage.IdentityStore this package
// depends on; identity does not import storage, so it can wrap any
// backing lookup, in-memory or Postgres, behind the same interface.
type tokenLookup interface {
	Lookup(ctx context.Context, token string) (tracking.Driver, bool, error)
}

// PostgresVerifier adapts a durable identity store to Verifier.
type PostgresVerifier struct {
	store tokenLookup
}

// NewPostgresVerifier wraps store (typically a *storage.IdentityStore).
func NewPostgresVerifier(store tokenLookup) *PostgresVerifier {
	return &PostgresVerifier{store: store}
}

// Verify implements Verifier.
func (v *PostgresVerifier) Verify(ctx context.Context, token string) (tracking.Driver, error) {
	driver, ok, err := v.store.Lookup(ctx, token)
	if err != nil {
		return tracking.Driver{}, tracking.Fail(tracking.ErrStoreUnavailable, err.Error())
	}
	if !ok {
		// Lookup collapses "no such token" and "expired token" into a
		// single false, so AuthUnknown vs AuthInvalid can't be told apart
		// here the way InMemoryStore.Verify does.
		return tracking.Driver{}, tracking.Fail(tracking.ErrAuthInvalid, "unknown or expired token")
	}
	return driver, nil
}
