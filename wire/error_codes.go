package wire

// ErrorCode values are the wire numbers for ErrorMessage.Code (spec §7),
// not Go error sentinels. Nothing in this repository maps between the two:
// the relay's error replies carry the error text in ErrorMessage.Message
// and leave Code zero, and the client does not read Code.
const (
	ErrorCodeInvalidMessage     uint32 = 1
	ErrorCodeUnknownGroup       uint32 = 2
	ErrorCodeUnauthorized       uint32 = 10
	ErrorCodeDeviceRevoked      uint32 = 11
	ErrorCodeNotBlobOwner       uint32 = 12
	ErrorCodeRateLimited        uint32 = 20
	ErrorCodeBlobTooLarge       uint32 = 21
	ErrorCodeGroupQuotaExceeded uint32 = 22
	ErrorCodeInvalidPushToken   uint32 = 23
	ErrorCodeRelayOverloaded    uint32 = 30
	ErrorCodeRelayShuttingDown  uint32 = 31
	ErrorCodeHandshakeFailed    uint32 = 40
	ErrorCodeDecryptFailed      uint32 = 41
	ErrorCodeContentCorrupt     uint32 = 42
)
