package wake

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/zerok-sync/sync/wire"
)

// Notification is the content-free payload delivered to a platform push
// service. It carries only what's needed to prompt a reconnect-and-pull;
// it is never user-visible (spec §6.3).
type Notification struct {
	GroupID wire.GroupID
	Cursor  wire.Cursor
}

// Notifier sends a best-effort silent wake notification to a device's
// registered platform token. Delivery is not guaranteed; callers must not
// treat a Notify failure as blocking the relay's own Push handling.
type Notifier interface {
	Notify(ctx context.Context, token string, n Notification) error
}

// NoopNotifier discards every notification; used where no push provider is
// configured (e.g. a relay deployment reachable only over always-on
// sessions, or test fixtures).
type NoopNotifier struct{}

// Notify implements Notifier by doing nothing.
func (NoopNotifier) Notify(context.Context, string, Notification) error {
	return nil
}

// LoggingNotifier records that a wake would have fired, for local
// development and for platforms without a configured push provider.
type LoggingNotifier struct{}

// Notify implements Notifier by logging the notification at debug level.
func (LoggingNotifier) Notify(_ context.Context, token string, n Notification) error {
	logrus.WithFields(logrus.Fields{
		"function": "Notify",
		"package":  "wake",
		"cursor":   n.Cursor,
	}).Debug("Would send silent wake notification")
	return nil
}
