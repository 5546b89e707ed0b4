package wake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopNotifierNeverErrors(t *testing.T) {
	var n Notifier = NoopNotifier{}
	assert.NoError(t, n.Notify(context.Background(), "token", Notification{Cursor: 1}))
}

func TestLoggingNotifierNeverErrors(t *testing.T) {
	var n Notifier = LoggingNotifier{}
	assert.NoError(t, n.Notify(context.Background(), "token", Notification{Cursor: 1}))
}
