package noise

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerok-sync/sync/crypto"
)

func randomStaticKey(t *testing.T) [32]byte {
	t.Helper()
	var key [32]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return key
}

// runHandshake drives a full XX exchange between an initiator and a
// responder instance, returning both completed sessions.
func runHandshake(t *testing.T) (*Session, *Session) {
	t.Helper()

	initiatorStatic := randomStaticKey(t)
	responderStatic := randomStaticKey(t)

	initiator, err := NewXXHandshake(initiatorStatic, Initiator)
	require.NoError(t, err)
	responder, err := NewXXHandshake(responderStatic, Responder)
	require.NoError(t, err)

	// -> e
	msg1, sess, err := initiator.WriteMessage()
	require.NoError(t, err)
	require.Nil(t, sess)
	_, err = responder.ReadMessage(msg1)
	require.NoError(t, err)

	// <- e, ee, s, es [+ KEM pubkey]
	msg2, sess, err := responder.WriteMessage()
	require.NoError(t, err)
	require.Nil(t, sess)
	_, err = initiator.ReadMessage(msg2)
	require.NoError(t, err)

	// -> s, se [+ KEM ciphertext], completes both sides
	msg3, initiatorSession, err := initiator.WriteMessage()
	require.NoError(t, err)
	require.NotNil(t, initiatorSession)

	responderSession, err := responder.ReadMessage(msg3)
	require.NoError(t, err)
	require.NotNil(t, responderSession)

	assert.True(t, initiator.IsComplete())
	assert.True(t, responder.IsComplete())

	return initiatorSession, responderSession
}

func TestXXHandshakeEstablishesUsableSession(t *testing.T) {
	initiatorSession, responderSession := runHandshake(t)

	frame := []byte("hello from the initiator")
	ct, err := initiatorSession.Encrypt(frame)
	require.NoError(t, err)

	pt, err := responderSession.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, frame, pt)
}

func TestXXHandshakeSessionIsBidirectional(t *testing.T) {
	initiatorSession, responderSession := runHandshake(t)

	initiatorFrame := []byte("initiator says hi")
	ct1, err := initiatorSession.Encrypt(initiatorFrame)
	require.NoError(t, err)
	pt1, err := responderSession.Decrypt(ct1)
	require.NoError(t, err)
	assert.Equal(t, initiatorFrame, pt1)

	responderFrame := []byte("responder says hi back")
	ct2, err := responderSession.Encrypt(responderFrame)
	require.NoError(t, err)
	pt2, err := initiatorSession.Decrypt(ct2)
	require.NoError(t, err)
	assert.Equal(t, responderFrame, pt2)
}

func TestXXHandshakeSessionsAgreeOnPeerIdentity(t *testing.T) {
	initiatorStatic := randomStaticKey(t)
	responderStatic := randomStaticKey(t)

	initiator, err := NewXXHandshake(initiatorStatic, Initiator)
	require.NoError(t, err)
	responder, err := NewXXHandshake(responderStatic, Responder)
	require.NoError(t, err)

	msg1, _, err := initiator.WriteMessage()
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg1)
	require.NoError(t, err)

	msg2, _, err := responder.WriteMessage()
	require.NoError(t, err)
	_, err = initiator.ReadMessage(msg2)
	require.NoError(t, err)

	msg3, initiatorSession, err := initiator.WriteMessage()
	require.NoError(t, err)
	responderSession, err := responder.ReadMessage(msg3)
	require.NoError(t, err)

	// Each side's authenticated peer key is the other side's public key as
	// derived from its static private key.
	initiatorKeys, err := crypto.FromSecretKey(initiatorStatic)
	require.NoError(t, err)
	responderKeys, err := crypto.FromSecretKey(responderStatic)
	require.NoError(t, err)
	assert.Equal(t, responderKeys.Public[:], initiatorSession.PeerStaticKey())
	assert.Equal(t, initiatorKeys.Public[:], responderSession.PeerStaticKey())
	assert.NotEmpty(t, initiatorSession.PeerStaticKey())
	assert.NotEmpty(t, responderSession.PeerStaticKey())
	assert.False(t, bytes.Equal(initiatorSession.PeerStaticKey(), responderSession.PeerStaticKey()))
}

func TestXXHandshakeRejectsMessageAfterCompletion(t *testing.T) {
	initiatorStatic := randomStaticKey(t)
	initiator, err := NewXXHandshake(initiatorStatic, Initiator)
	require.NoError(t, err)
	initiator.complete = true

	_, _, err = initiator.WriteMessage()
	assert.ErrorIs(t, err, ErrHandshakeComplete)

	_, err = initiator.ReadMessage([]byte("anything"))
	assert.ErrorIs(t, err, ErrHandshakeComplete)
}

func TestXXHandshakeRejectsCorruptFrame(t *testing.T) {
	initiatorStatic := randomStaticKey(t)
	responderStatic := randomStaticKey(t)

	initiator, err := NewXXHandshake(initiatorStatic, Initiator)
	require.NoError(t, err)
	responder, err := NewXXHandshake(responderStatic, Responder)
	require.NoError(t, err)

	msg1, _, err := initiator.WriteMessage()
	require.NoError(t, err)

	corrupted := append([]byte(nil), msg1...)
	corrupted[0] ^= 0xFF

	_, err = responder.ReadMessage(corrupted)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
}

func TestSessionRejectsTamperedFrame(t *testing.T) {
	initiatorSession, responderSession := runHandshake(t)

	ct, err := initiatorSession.Encrypt([]byte("do not tamper with me"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF

	_, err = responderSession.Decrypt(ct)
	assert.Error(t, err)
}

func TestSessionRejectsUseAfterClose(t *testing.T) {
	initiatorSession, _ := runHandshake(t)
	initiatorSession.Close()

	_, err := initiatorSession.Encrypt([]byte("too late"))
	assert.ErrorIs(t, err, ErrSessionClosed)
}
