// Package wake defines the push-notification collaborator (spec §6.3):
// when the relay stores a blob for a device that is offline but holds a
// registered platform token, it may emit a silent, content-free wake
// notification so the device's OS prompts it to reconnect. This package
// specifies only the narrow interface; APNS/FCM integration is external.
package wake
