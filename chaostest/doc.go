// Package chaostest holds property-based tests for the quantified
// invariants and round-trip laws in the engine's testable-properties
// section: cursor gap-freedom under reordering, codec round-trip laws,
// content-key uniqueness, reconnect-jitter spread, and ack idempotence.
// Most scenario-level tests (offline delivery, revocation, force delete)
// live alongside the code they exercise in relaycore's own test files. The
// one exception is integration_test.go, which runs the two-device push/pull
// scenario through real client.Client and relaycore.Server instances; the
// other files here test properties over arbitrary inputs.
package chaostest
