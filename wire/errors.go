package wire

import "errors"

// ErrInvalidMessage is returned for any frame with an unknown version, a
// missing or wrong-size required field, or unconsumed trailing bytes (spec
// §4.1). The codec never returns a partially populated record alongside
// this error.
var ErrInvalidMessage = errors.New("invalid message")
