package relaycore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/limits"
	"github.com/zerok-sync/sync/wake"
	"github.com/zerok-sync/sync/wire"
)

// Relay wires the durable Store, rate limiter, and optional push notifier
// into the handlers described in spec §4.5. It holds no group key material
// and never inspects ciphertext payloads beyond their length.
type Relay struct {
	store    *Store
	limiter  *RateLimiter
	notifier wake.Notifier
}

// NewRelay constructs a Relay. notifier may be wake.NoopNotifier{} if no
// push provider is configured.
func NewRelay(store *Store, notifier wake.Notifier) *Relay {
	if notifier == nil {
		notifier = wake.NoopNotifier{}
	}
	return &Relay{
		store:    store,
		limiter:  NewRateLimiter(),
		notifier: notifier,
	}
}

// HelloResult is the outcome of a successful OnHello call: the Welcome
// payload plus the Notify backlog to replay to the connecting device.
type HelloResult struct {
	Welcome  wire.Welcome
	Notifies []wire.Notify
}

// OnHello validates and registers a device's session for a group (spec
// §4.5 "On Hello"). It must be called only after the transport handshake
// identifying device has already completed.
func (r *Relay) OnHello(ctx context.Context, group wire.GroupID, device wire.DeviceID, hello wire.Hello) (*HelloResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "OnHello",
		"package":  "relaycore",
	})

	revoked, err := r.store.IsRevoked(device, group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	if revoked {
		logger.WithFields(logrus.Fields{"error_type": "device_revoked"}).Debug("Rejected Hello from revoked device")
		return nil, ErrDeviceRevoked
	}

	if err := r.store.RegisterDevice(group, device); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	maxCursor, err := r.store.MaxCursor(group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	pendingCount, err := r.store.PendingCount(group, device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	pending, err := r.store.PendingBlobsSince(group, hello.LastCursor, device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	notifies := make([]wire.Notify, 0, len(pending))
	for _, blob := range pending {
		notifies = append(notifies, wire.Notify{Cursor: blob.Cursor, Sender: blob.SenderID})
	}

	return &HelloResult{
		Welcome: wire.Welcome{
			MaxCursor:    maxCursor,
			PendingCount: pendingCount,
		},
		Notifies: notifies,
	}, nil
}

// PushResult is the outcome of a successful OnPush call.
type PushResult struct {
	Cursor       wire.Cursor
	NotifyOnline []wire.DeviceID // devices to send an immediate Notify
}

// OnPush admits a Push, assigning a monotonic cursor and persisting the
// ciphertext (spec §4.5 "On Push"). sourceKey identifies the rate-limit
// bucket (typically the device id).
func (r *Relay) OnPush(ctx context.Context, group wire.GroupID, sender wire.DeviceID, sourceKey string, blobID wire.BlobID, nonce [24]byte, payload []byte, ttlSeconds uint64) (*PushResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "OnPush",
		"package":  "relaycore",
	})

	revoked, err := r.store.IsRevoked(sender, group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	if revoked {
		return nil, ErrDeviceRevoked
	}

	if !r.limiter.AllowPush(sourceKey, time.Now()) {
		logger.WithFields(logrus.Fields{"error_type": "rate_limited"}).Debug("Push rejected by rate limiter")
		return nil, ErrRateLimited
	}
	if len(payload) > limits.MaxBlobSize {
		return nil, ErrBlobTooLarge
	}

	currentUsage, err := r.store.GroupStorageBytes(group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	if currentUsage+int64(len(payload)) > limits.MaxGroupStorage {
		return nil, ErrGroupQuotaExceeded
	}

	ttl := limits.DefaultTTL
	if ttlSeconds > 0 {
		seconds, err := crypto.SafeUint64ToInt64(ttlSeconds)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTTL, err)
		}
		ttl = time.Duration(seconds) * time.Second
	}

	cursor, err := r.store.AppendBlob(group, blobID, sender, nonce, payload, ttl)
	if err != nil {
		return nil, err
	}

	online, err := r.store.OnlineGroupDevices(group, sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	go r.wakeOfflineDevices(group, sender, cursor)

	return &PushResult{Cursor: cursor, NotifyOnline: online}, nil
}

func (r *Relay) wakeOfflineDevices(group wire.GroupID, sender wire.DeviceID, cursor wire.Cursor) {
	devices, err := r.store.GroupDevices(group)
	if err != nil {
		return
	}
	online, err := r.store.OnlineGroupDevices(group, sender)
	if err != nil {
		return
	}
	isOnline := make(map[wire.DeviceID]bool, len(online))
	for _, d := range online {
		isOnline[d] = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, device := range devices {
		if device == sender || isOnline[device] {
			continue
		}
		token, ok, err := r.store.PushToken(device)
		if err != nil || !ok {
			continue
		}
		_ = r.notifier.Notify(ctx, token, wake.Notification{GroupID: group, Cursor: cursor})
	}
}

// ErrInvitePostRateLimited and ErrInviteFetchRateLimited are returned by
// PostInvite/FetchInvite when the caller exceeds the short-code rate table
// (spec §4.5).
var (
	ErrInvitePostRateLimited  = fmt.Errorf("%w: invite post rate limit exceeded", ErrRateLimited)
	ErrInviteFetchRateLimited = fmt.Errorf("%w: invite fetch rate limit exceeded", ErrRateLimited)
)

// PostInvite rate-limits and stores a short-code invite's opaque ciphertext
// (spec §4.2), blind to its contents. sourceKey is typically the posting
// device's transport NodeID, since the device has no group membership yet
// at this point and so no DeviceID the relay would recognize.
func (r *Relay) PostInvite(sourceKey, lookupKey string, ciphertext []byte, expiresAt time.Time) error {
	if !r.limiter.AllowInvitePost(sourceKey, time.Now()) {
		return ErrInvitePostRateLimited
	}
	if err := r.store.PostInvite(lookupKey, ciphertext, expiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	return nil
}

// FetchInvite rate-limits and retrieves a short-code invite's ciphertext,
// tracking hits and misses against separate limiter buckets (spec §4.5:
// failed lookups are throttled harder, since a miss is consistent with an
// attacker enumerating lookup keys).
func (r *Relay) FetchInvite(sourceKey, lookupKey string) ([]byte, error) {
	ciphertext, err := r.store.FetchInvite(lookupKey, time.Now())
	if err != nil {
		if errors.Is(err, ErrInviteNotFound) {
			if !r.limiter.AllowInviteGetMiss(sourceKey, time.Now()) {
				return nil, ErrInviteFetchRateLimited
			}
			return nil, ErrInviteNotFound
		}
		return nil, err
	}
	if !r.limiter.AllowInviteGetHit(sourceKey, time.Now()) {
		return nil, ErrInviteFetchRateLimited
	}
	return ciphertext, nil
}

// OnContentRef validates a ContentRef/ContentAck sender for live forwarding
// (spec §4.4). Unlike OnPush it persists nothing: a ContentRef that arrives
// while a recipient is offline is simply never forwarded to it, since the
// wire taxonomy gives content refs no pull path to catch up on later.
func (r *Relay) OnContentRef(ctx context.Context, group wire.GroupID, sender wire.DeviceID) ([]wire.DeviceID, error) {
	revoked, err := r.store.IsRevoked(sender, group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	if revoked {
		return nil, ErrDeviceRevoked
	}

	online, err := r.store.OnlineGroupDevices(group, sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	return online, nil
}

// PullResult mirrors wire.PullResponse.
type PullResult struct {
	Blobs     []BlobRecord
	MaxCursor wire.Cursor
	HasMore   bool
}

// OnPull serves a Pull request and records implicit delivery for every
// returned blob (spec §4.5 "On Pull").
func (r *Relay) OnPull(ctx context.Context, group wire.GroupID, device wire.DeviceID, afterCursor wire.Cursor, limit uint32) (*PullResult, error) {
	if limit == 0 {
		limit = limits.DefaultPullLimit
	}

	revoked, err := r.store.IsRevoked(device, group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	if revoked {
		return nil, ErrDeviceRevoked
	}

	blobs, maxCursor, hasMore, err := r.store.BlobsAfter(group, afterCursor, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	for _, blob := range blobs {
		if err := r.store.RecordDelivery(blob.BlobID, device); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
		}
	}

	return &PullResult{Blobs: blobs, MaxCursor: maxCursor, HasMore: hasMore}, nil
}

// OnDelete handles a Delete request (spec §4.5 "On Delete"). When force is
// false, deletion only proceeds if every non-revoked group member has
// acknowledged the blob; when force is true, only the original sender may
// delete, bypassing the all-acked requirement.
func (r *Relay) OnDelete(ctx context.Context, requester wire.DeviceID, blobID wire.BlobID, force bool) error {
	group, err := r.store.BlobGroup(blobID)
	if err != nil {
		return fmt.Errorf("%w: unknown blob", ErrUnknownGroup)
	}
	sender, err := r.store.BlobSender(blobID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	if force {
		if sender != requester {
			return ErrNotBlobOwner
		}
		return r.store.DeleteBlob(blobID)
	}

	fullyDelivered, err := r.store.FullyDelivered(group, sender, blobID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	if !fullyDelivered {
		return ErrBlobNotDeletable
	}
	return r.store.DeleteBlob(blobID)
}

// OnRevokeDevice records a revocation and evicts now-orphaned blobs (spec
// §4.5 "On RevokeDevice").
func (r *Relay) OnRevokeDevice(ctx context.Context, group wire.GroupID, device wire.DeviceID, reason string) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "OnRevokeDevice",
		"package":  "relaycore",
	})

	if err := r.store.RevokeDevice(device, group, reason); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}

	orphaned, err := r.orphanedBlobsAfterRevocation(group)
	if err != nil {
		return err
	}
	for _, blobID := range orphaned {
		if err := r.store.DeleteBlob(blobID); err != nil {
			logger.WithFields(logrus.Fields{
				"error_type": "orphan_delete_failed",
				"error":      err.Error(),
			}).Error("Failed to delete orphaned blob after revocation")
		}
	}

	return nil
}

// orphanedBlobsAfterRevocation finds blobs in group that became fully
// delivered as a side effect of the revoked device no longer counting
// toward the all-acked requirement.
func (r *Relay) orphanedBlobsAfterRevocation(group wire.GroupID) ([]wire.BlobID, error) {
	var orphaned []wire.BlobID
	blobs, _, _, err := r.store.BlobsAfter(group, 0, 1<<30)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	for _, blob := range blobs {
		delivered, err := r.store.FullyDelivered(group, blob.SenderID, blob.BlobID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
		}
		if delivered {
			orphaned = append(orphaned, blob.BlobID)
		}
	}
	return orphaned, nil
}

// OnRegisterPush binds token to device for wake notifications.
func (r *Relay) OnRegisterPush(device wire.DeviceID, token string) error {
	if token == "" {
		return ErrInvalidPushToken
	}
	if err := r.store.SetPushToken(device, token); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	return nil
}

// OnUnregisterPush removes device's push binding.
func (r *Relay) OnUnregisterPush(device wire.DeviceID) error {
	if err := r.store.ClearPushToken(device); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayOverloaded, err)
	}
	return nil
}

// RunCleanup runs one cleanup cycle, deleting expired blobs and expired
// unfetched invites, and returns the total number of rows removed.
// cmd/relayd calls it on a ticker.
func (r *Relay) RunCleanup(ctx context.Context) (int64, error) {
	now := time.Now()
	blobs, err := r.store.CleanupExpired(now)
	if err != nil {
		return 0, err
	}
	invites, err := r.store.CleanupExpiredInvites(now)
	if err != nil {
		return blobs, err
	}
	return blobs + invites, nil
}
