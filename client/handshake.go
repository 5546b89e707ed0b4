package client

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zerok-sync/sync/noise"
	"github.com/zerok-sync/sync/transport"
)

// dialHandshake drives the Noise XX initiator side to completion over t,
// sending and receiving the three handshake frames in turn (spec §4.3
// layer 1). It returns the established Session or a wrapped
// noise.ErrHandshakeFailed.
func dialHandshake(ctx context.Context, t transport.Capability, peer transport.NodeID, staticPriv [32]byte) (*noise.Session, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "dialHandshake",
		"package":  "client",
	})
	logger.Debug("Function entry: starting Noise XX handshake as initiator")

	hs, err := noise.NewXXHandshake(staticPriv, noise.Initiator)
	if err != nil {
		return nil, fmt.Errorf("build initiator handshake state: %w", err)
	}

	msg1, _, err := hs.WriteMessage()
	if err != nil {
		return nil, fmt.Errorf("write handshake message one: %w", err)
	}
	if err := t.Send(ctx, peer, msg1); err != nil {
		return nil, fmt.Errorf("send handshake message one: %w", err)
	}

	frame2, err := t.Recv(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("receive handshake message two: %w", err)
	}
	if _, err := hs.ReadMessage(frame2); err != nil {
		return nil, fmt.Errorf("read handshake message two: %w", err)
	}

	msg3, session, err := hs.WriteMessage()
	if err != nil {
		return nil, fmt.Errorf("write handshake message three: %w", err)
	}
	if err := t.Send(ctx, peer, msg3); err != nil {
		return nil, fmt.Errorf("send handshake message three: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: initiator handshake did not complete after message three", noise.ErrHandshakeFailed)
	}

	logger.Debug("Function exit: initiator handshake complete")
	return session, nil
}
