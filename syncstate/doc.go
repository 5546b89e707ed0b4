// Package syncstate implements layer 2 of the sync engine: the connection
// state machine, the pending-push buffer, the cursor tracker, and the
// reconnect backoff calculation (spec §4.2). Every exported type here is a
// pure data structure — no network, disk, or timer access — so the client
// runtime (package client) can drive it deterministically and test it
// without mocks.
package syncstate
