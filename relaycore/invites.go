package relaycore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrInviteNotFound indicates lookup_key has no stored invite, either
// because it never existed, it expired, or it was already fetched once
// (short-code invites are delete-on-read, spec §4.2).
var ErrInviteNotFound = errors.New("invite not found")

// PostInvite stores an opaque short-code invite ciphertext under lookupKey,
// blind to its contents (the relay never observes decrypt_key or the
// plaintext invite record). Subject to RateLimiter.AllowInvitePost by the
// caller.
func (s *Store) PostInvite(lookupKey string, ciphertext []byte, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO invites(lookup_key, ciphertext, expires_at) VALUES (?, ?, ?)`,
		lookupKey, ciphertext, expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("post invite: %w", err)
	}
	return nil
}

// FetchInvite retrieves and deletes the invite stored under lookupKey,
// enforcing single-use and expiry. A second fetch for the same lookupKey,
// or a fetch past expiry, returns ErrInviteNotFound.
func (s *Store) FetchInvite(lookupKey string, now time.Time) ([]byte, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: begin fetch-invite transaction: %v", ErrRelayOverloaded, err)
	}
	defer tx.Rollback()

	var ciphertext []byte
	var expiresAt int64
	err = tx.QueryRow(`SELECT ciphertext, expires_at FROM invites WHERE lookup_key = ?`, lookupKey).Scan(&ciphertext, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	if _, err := tx.Exec(`DELETE FROM invites WHERE lookup_key = ?`, lookupKey); err != nil {
		return nil, fmt.Errorf("%w: delete fetched invite: %v", ErrRelayOverloaded, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit fetch-invite transaction: %v", ErrRelayOverloaded, err)
	}

	if now.Unix() > expiresAt {
		return nil, ErrInviteNotFound
	}
	return ciphertext, nil
}

// CleanupExpiredInvites deletes invites whose expiry has elapsed without
// ever being fetched.
func (s *Store) CleanupExpiredInvites(now time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM invites WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired invites: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleaned invites: %w", err)
	}
	return n, nil
}
