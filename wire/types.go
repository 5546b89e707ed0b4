package wire

import "fmt"

// ProtocolVersion is the current wire format version. The codec rejects any
// frame declaring a different version.
const ProtocolVersion uint8 = 1

// MessageType is the tag distinguishing the 16 wire message variants (spec
// §4.1). Values are wire-stable; never renumber an existing tag.
type MessageType uint8

const (
	TypeHello          MessageType = 0x01
	TypeWelcome        MessageType = 0x02
	TypePush           MessageType = 0x10
	TypePushAck        MessageType = 0x11
	TypePull           MessageType = 0x20
	TypePullResponse   MessageType = 0x21
	TypePresence       MessageType = 0x30
	TypeNotify         MessageType = 0x31
	TypeDelete         MessageType = 0x40
	TypeRevokeDevice   MessageType = 0x50
	TypeDeviceRevoked  MessageType = 0x51
	TypeRegisterPush   MessageType = 0x60
	TypeUnregisterPush MessageType = 0x61
	TypeContentRef     MessageType = 0x70
	TypeContentAck     MessageType = 0x71
	TypeError          MessageType = 0xFF
)

// String renders a MessageType for logs and error messages.
func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "Hello"
	case TypeWelcome:
		return "Welcome"
	case TypePush:
		return "Push"
	case TypePushAck:
		return "PushAck"
	case TypePull:
		return "Pull"
	case TypePullResponse:
		return "PullResponse"
	case TypePresence:
		return "Presence"
	case TypeNotify:
		return "Notify"
	case TypeDelete:
		return "Delete"
	case TypeRevokeDevice:
		return "RevokeDevice"
	case TypeDeviceRevoked:
		return "DeviceRevoked"
	case TypeRegisterPush:
		return "RegisterPush"
	case TypeUnregisterPush:
		return "UnregisterPush"
	case TypeContentRef:
		return "ContentRef"
	case TypeContentAck:
		return "ContentAck"
	case TypeError:
		return "Error"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", uint8(t))
	}
}

// DeviceID is the public half of a device's long-term keypair, 32 bytes.
type DeviceID [32]byte

// GroupID opaquely identifies a sync group, 32 bytes.
type GroupID [32]byte

// BlobID is a client-chosen unique id for a pushed payload, UUIDv4
// semantics, 16 bytes.
type BlobID [16]byte

// Cursor is the relay-assigned monotonic per-group sequence number. Zero
// means "never seen."
type Cursor uint64

// ContentHash is the BLAKE3 hash of a large-content ciphertext, 32 bytes.
type ContentHash [32]byte
