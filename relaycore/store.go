package relaycore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/wire"
)

// BlobRecord is one durable relay-held ciphertext row (spec §3: `blobs`).
type BlobRecord struct {
	BlobID    wire.BlobID
	GroupID   wire.GroupID
	Cursor    wire.Cursor
	SenderID  wire.DeviceID
	Nonce     [24]byte
	Payload   []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store is the relay's durable per-group log: cursor assignment, blob
// storage, delivery tracking, and revocation, backed by SQLite via
// database/sql. A single *sql.DB is safe for concurrent use. NewStore caps
// the pool at one open connection, so transactions run one at a time; that,
// not the transaction mode (db.Begin uses the driver's default deferred
// BEGIN), is what serializes the cursor read-modify-write in AppendBlob.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) a SQLite database at dsn and applies
// the schema. dsn is passed straight to database/sql; "file::memory:?cache=shared"
// is a convenient in-test DSN.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open relay store: %w", err)
	}
	db.SetMaxOpenConns(1) // one connection: transactions, including cursor assignment, run one at a time

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate relay store: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	group_id    BLOB PRIMARY KEY,
	next_cursor INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS blobs (
	blob_id    BLOB PRIMARY KEY,
	group_id   BLOB NOT NULL,
	cursor     INTEGER NOT NULL,
	sender_id  BLOB NOT NULL,
	nonce      BLOB NOT NULL,
	payload    BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_blobs_group_cursor ON blobs(group_id, cursor);
CREATE INDEX IF NOT EXISTS idx_blobs_expires_at ON blobs(expires_at);
CREATE TABLE IF NOT EXISTS deliveries (
	blob_id     BLOB NOT NULL,
	device_id   BLOB NOT NULL,
	delivered_at INTEGER NOT NULL,
	PRIMARY KEY (blob_id, device_id)
);
CREATE TABLE IF NOT EXISTS revoked_devices (
	device_id  BLOB NOT NULL,
	group_id   BLOB NOT NULL,
	reason     TEXT NOT NULL,
	revoked_at INTEGER NOT NULL,
	PRIMARY KEY (device_id, group_id)
);
CREATE TABLE IF NOT EXISTS group_devices (
	group_id    BLOB NOT NULL,
	device_id   BLOB NOT NULL,
	last_cursor INTEGER NOT NULL DEFAULT 0,
	online      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (group_id, device_id)
);
CREATE TABLE IF NOT EXISTS push_tokens (
	device_id BLOB PRIMARY KEY,
	token     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS invites (
	lookup_key  TEXT PRIMARY KEY,
	ciphertext  BLOB NOT NULL,
	expires_at  INTEGER NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

// AppendBlob atomically assigns the next cursor for group and inserts the
// blob row. If blobID already exists (a duplicate Push, same blob id), it
// is treated as a no-op that returns the blob's original cursor — the
// chosen resolution of the spec's duplicate-push Open Question.
func (s *Store) AppendBlob(group wire.GroupID, blobID wire.BlobID, sender wire.DeviceID, nonce [24]byte, payload []byte, ttl time.Duration) (wire.Cursor, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "AppendBlob",
		"package":  "relaycore",
	})

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: begin append-blob transaction: %v", ErrRelayOverloaded, err)
	}
	defer tx.Rollback()

	var existingCursor int64
	row := tx.QueryRow(`SELECT cursor FROM blobs WHERE blob_id = ?`, blobID[:])
	switch err := row.Scan(&existingCursor); {
	case err == nil:
		logger.WithFields(logrus.Fields{"blob_id": blobID.String()}).Debug("Duplicate push, returning original cursor")
		return wire.Cursor(existingCursor), tx.Commit()
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("%w: check existing blob: %v", ErrRelayOverloaded, err)
	}

	if _, err := tx.Exec(`INSERT OR IGNORE INTO cursors(group_id, next_cursor) VALUES (?, 1)`, group[:]); err != nil {
		return 0, fmt.Errorf("%w: seed cursor row: %v", ErrRelayOverloaded, err)
	}

	var next int64
	if err := tx.QueryRow(`SELECT next_cursor FROM cursors WHERE group_id = ?`, group[:]).Scan(&next); err != nil {
		return 0, fmt.Errorf("%w: read next cursor: %v", ErrRelayOverloaded, err)
	}
	if _, err := tx.Exec(`UPDATE cursors SET next_cursor = ? WHERE group_id = ?`, next+1, group[:]); err != nil {
		return 0, fmt.Errorf("%w: advance next cursor: %v", ErrRelayOverloaded, err)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	_, err = tx.Exec(
		`INSERT INTO blobs(blob_id, group_id, cursor, sender_id, nonce, payload, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		blobID[:], group[:], next, sender[:], nonce[:], payload, expiresAt.Unix(), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert blob row: %v", ErrRelayOverloaded, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit append-blob transaction: %v", ErrRelayOverloaded, err)
	}
	return wire.Cursor(next), nil
}

// MaxCursor returns the highest cursor assigned in group, or 0 if the group
// has never accepted a push.
func (s *Store) MaxCursor(group wire.GroupID) (wire.Cursor, error) {
	var next sql.NullInt64
	err := s.db.QueryRow(`SELECT next_cursor - 1 FROM cursors WHERE group_id = ?`, group[:]).Scan(&next)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read max cursor: %w", err)
	}
	if !next.Valid || next.Int64 < 0 {
		return 0, nil
	}
	return wire.Cursor(next.Int64), nil
}

// BlobsAfter returns blobs in group with cursor strictly greater than
// afterCursor, ordered ascending, capped at limit, plus the observed max
// cursor and whether strictly more rows remain past limit.
func (s *Store) BlobsAfter(group wire.GroupID, afterCursor wire.Cursor, limit uint32) ([]BlobRecord, wire.Cursor, bool, error) {
	rows, err := s.db.Query(
		`SELECT blob_id, cursor, sender_id, nonce, payload, expires_at, created_at FROM blobs
		 WHERE group_id = ? AND cursor > ? ORDER BY cursor ASC LIMIT ?`,
		group[:], int64(afterCursor), int64(limit)+1,
	)
	if err != nil {
		return nil, 0, false, fmt.Errorf("query blobs after cursor: %w", err)
	}
	defer rows.Close()

	var records []BlobRecord
	for rows.Next() {
		var rec BlobRecord
		var blobID, senderID, nonce []byte
		var expiresAt, createdAt int64
		if err := rows.Scan(&blobID, &rec.Cursor, &senderID, &nonce, &rec.Payload, &expiresAt, &createdAt); err != nil {
			return nil, 0, false, fmt.Errorf("scan blob row: %w", err)
		}
		copy(rec.BlobID[:], blobID)
		copy(rec.SenderID[:], senderID)
		copy(rec.Nonce[:], nonce)
		rec.GroupID = group
		rec.ExpiresAt = time.Unix(expiresAt, 0)
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, fmt.Errorf("iterate blob rows: %w", err)
	}

	hasMore := false
	if uint32(len(records)) > limit {
		records = records[:limit]
		hasMore = true
	}

	maxCursor := afterCursor
	if len(records) > 0 {
		maxCursor = records[len(records)-1].Cursor
	}
	return records, maxCursor, hasMore, nil
}

// RecordDelivery marks blobID as delivered to device. Idempotent.
func (s *Store) RecordDelivery(blobID wire.BlobID, device wire.DeviceID) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO deliveries(blob_id, device_id, delivered_at) VALUES (?, ?, ?)`,
		blobID[:], device[:], time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// RegisterDevice upserts group membership for device, used on Hello.
func (s *Store) RegisterDevice(group wire.GroupID, device wire.DeviceID) error {
	_, err := s.db.Exec(
		`INSERT INTO group_devices(group_id, device_id, last_cursor, online) VALUES (?, ?, 0, 1)
		 ON CONFLICT(group_id, device_id) DO UPDATE SET online = 1`,
		group[:], device[:],
	)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// SetDeviceOnline flips a device's online flag, used on connect/disconnect.
func (s *Store) SetDeviceOnline(group wire.GroupID, device wire.DeviceID, online bool) error {
	onlineInt := 0
	if online {
		onlineInt = 1
	}
	_, err := s.db.Exec(
		`UPDATE group_devices SET online = ? WHERE group_id = ? AND device_id = ?`,
		onlineInt, group[:], device[:],
	)
	if err != nil {
		return fmt.Errorf("set device online: %w", err)
	}
	return nil
}

// GroupDevices returns every non-revoked device registered in group.
func (s *Store) GroupDevices(group wire.GroupID) ([]wire.DeviceID, error) {
	rows, err := s.db.Query(
		`SELECT gd.device_id FROM group_devices gd
		 WHERE gd.group_id = ? AND NOT EXISTS (
			 SELECT 1 FROM revoked_devices rd WHERE rd.group_id = gd.group_id AND rd.device_id = gd.device_id
		 )`,
		group[:],
	)
	if err != nil {
		return nil, fmt.Errorf("query group devices: %w", err)
	}
	defer rows.Close()

	var devices []wire.DeviceID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan group device: %w", err)
		}
		var id wire.DeviceID
		copy(id[:], raw)
		devices = append(devices, id)
	}
	return devices, rows.Err()
}

// OnlineGroupDevices returns non-revoked devices in group currently marked
// online, excluding exclude.
func (s *Store) OnlineGroupDevices(group wire.GroupID, exclude wire.DeviceID) ([]wire.DeviceID, error) {
	all, err := s.GroupDevices(group)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT device_id FROM group_devices WHERE group_id = ? AND online = 1`, group[:])
	if err != nil {
		return nil, fmt.Errorf("query online devices: %w", err)
	}
	defer rows.Close()

	online := make(map[wire.DeviceID]bool)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan online device: %w", err)
		}
		var id wire.DeviceID
		copy(id[:], raw)
		online[id] = true
	}

	var result []wire.DeviceID
	for _, id := range all {
		if id != exclude && online[id] {
			result = append(result, id)
		}
	}
	return result, rows.Err()
}

// PendingCount returns the number of blobs in group not yet delivered to
// device.
func (s *Store) PendingCount(group wire.GroupID, device wire.DeviceID) (uint32, error) {
	var count int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM blobs b
		 WHERE b.group_id = ? AND NOT EXISTS (
			 SELECT 1 FROM deliveries d WHERE d.blob_id = b.blob_id AND d.device_id = ?
		 )`,
		group[:], device[:],
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending blobs: %w", err)
	}
	return uint32(count), nil
}

// PendingBlobsSince returns blobs in group with cursor greater than
// afterCursor that device has not yet pulled, for Hello-time replay.
func (s *Store) PendingBlobsSince(group wire.GroupID, afterCursor wire.Cursor, device wire.DeviceID) ([]BlobRecord, error) {
	rows, err := s.db.Query(
		`SELECT blob_id, cursor, sender_id, nonce, payload, expires_at, created_at FROM blobs b
		 WHERE b.group_id = ? AND b.cursor > ? AND NOT EXISTS (
			 SELECT 1 FROM deliveries d WHERE d.blob_id = b.blob_id AND d.device_id = ?
		 ) ORDER BY cursor ASC`,
		group[:], int64(afterCursor), device[:],
	)
	if err != nil {
		return nil, fmt.Errorf("query pending blobs: %w", err)
	}
	defer rows.Close()

	var records []BlobRecord
	for rows.Next() {
		var rec BlobRecord
		var blobID, senderID, nonce []byte
		var expiresAt, createdAt int64
		if err := rows.Scan(&blobID, &rec.Cursor, &senderID, &nonce, &rec.Payload, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending blob: %w", err)
		}
		copy(rec.BlobID[:], blobID)
		copy(rec.SenderID[:], senderID)
		copy(rec.Nonce[:], nonce)
		rec.GroupID = group
		rec.ExpiresAt = time.Unix(expiresAt, 0)
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GroupStorageBytes sums the ciphertext size currently stored for group.
func (s *Store) GroupStorageBytes(group wire.GroupID) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(LENGTH(payload)) FROM blobs WHERE group_id = ?`, group[:]).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum group storage: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// BlobSender returns the sender of blobID, or sql.ErrNoRows wrapped if
// absent.
func (s *Store) BlobSender(blobID wire.BlobID) (wire.DeviceID, error) {
	var senderID []byte
	err := s.db.QueryRow(`SELECT sender_id FROM blobs WHERE blob_id = ?`, blobID[:]).Scan(&senderID)
	if err != nil {
		return wire.DeviceID{}, fmt.Errorf("read blob sender: %w", err)
	}
	var id wire.DeviceID
	copy(id[:], senderID)
	return id, nil
}

// BlobGroup returns the group a blob belongs to.
func (s *Store) BlobGroup(blobID wire.BlobID) (wire.GroupID, error) {
	var groupID []byte
	err := s.db.QueryRow(`SELECT group_id FROM blobs WHERE blob_id = ?`, blobID[:]).Scan(&groupID)
	if err != nil {
		return wire.GroupID{}, fmt.Errorf("read blob group: %w", err)
	}
	var id wire.GroupID
	copy(id[:], groupID)
	return id, nil
}

// FullyDelivered reports whether every non-revoked device in group other
// than sender has a delivery record for blobID. The sender is excluded
// since it already holds the plaintext it pushed and never pulls its own
// blob back.
func (s *Store) FullyDelivered(group wire.GroupID, sender wire.DeviceID, blobID wire.BlobID) (bool, error) {
	devices, err := s.GroupDevices(group)
	if err != nil {
		return false, err
	}
	for _, device := range devices {
		if device == sender {
			continue
		}
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM deliveries WHERE blob_id = ? AND device_id = ?`, blobID[:], device[:]).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("check delivery: %w", err)
		}
		if count == 0 {
			return false, nil
		}
	}
	return true, nil
}

// DeleteBlob removes blobID and its delivery rows.
func (s *Store) DeleteBlob(blobID wire.BlobID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete-blob transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM deliveries WHERE blob_id = ?`, blobID[:]); err != nil {
		return fmt.Errorf("delete deliveries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM blobs WHERE blob_id = ?`, blobID[:]); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return tx.Commit()
}

// IsRevoked reports whether (device, group) is in revoked_devices.
func (s *Store) IsRevoked(device wire.DeviceID, group wire.GroupID) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM revoked_devices WHERE device_id = ? AND group_id = ?`, device[:], group[:]).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return count > 0, nil
}

// RevokeDevice records a revocation and clears the device's pending
// deliveries and group membership.
func (s *Store) RevokeDevice(device wire.DeviceID, group wire.GroupID, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin revoke transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO revoked_devices(device_id, group_id, reason, revoked_at) VALUES (?, ?, ?, ?)`,
		device[:], group[:], reason, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert revocation: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM deliveries WHERE device_id = ?`, device[:]); err != nil {
		return fmt.Errorf("clear deliveries for revoked device: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM group_devices WHERE group_id = ? AND device_id = ?`, group[:], device[:]); err != nil {
		return fmt.Errorf("clear membership for revoked device: %w", err)
	}
	return tx.Commit()
}

// SetPushToken binds a platform push token to device.
func (s *Store) SetPushToken(device wire.DeviceID, token string) error {
	_, err := s.db.Exec(
		`INSERT INTO push_tokens(device_id, token) VALUES (?, ?) ON CONFLICT(device_id) DO UPDATE SET token = excluded.token`,
		device[:], token,
	)
	if err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	return nil
}

// ClearPushToken removes device's push token binding, if any.
func (s *Store) ClearPushToken(device wire.DeviceID) error {
	if _, err := s.db.Exec(`DELETE FROM push_tokens WHERE device_id = ?`, device[:]); err != nil {
		return fmt.Errorf("clear push token: %w", err)
	}
	return nil
}

// PushToken returns device's registered push token, and whether one exists.
func (s *Store) PushToken(device wire.DeviceID) (string, bool, error) {
	var token string
	err := s.db.QueryRow(`SELECT token FROM push_tokens WHERE device_id = ?`, device[:]).Scan(&token)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read push token: %w", err)
	}
	return token, true, nil
}

// CleanupExpired deletes blobs whose TTL has elapsed, together with their
// delivery rows, and returns how many blobs it removed. It does not delete
// unexpired blobs, even ones no recipient still waits for; those are
// removed only by OnDelete or by the orphan sweep in OnRevokeDevice.
// cmd/relayd calls it through Relay.RunCleanup, hourly by default.
func (s *Store) CleanupExpired(now time.Time) (int64, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "CleanupExpired",
		"package":  "relaycore",
	})

	if _, err := s.db.Exec(`DELETE FROM deliveries WHERE blob_id IN (SELECT blob_id FROM blobs WHERE expires_at <= ?)`, now.Unix()); err != nil {
		return 0, fmt.Errorf("cleanup expired deliveries: %w", err)
	}

	result, err := s.db.Exec(`DELETE FROM blobs WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired blobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleaned blobs: %w", err)
	}

	logger.WithFields(logrus.Fields{"deleted": n}).Debug("Cleanup cycle removed expired blobs")
	return n, nil
}
