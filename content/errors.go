package content

import "errors"

var (
	// ErrContentCorrupt indicates a chunk or final ciphertext failed hash
	// verification. The caller must discard any bytes received so far.
	ErrContentCorrupt = errors.New("content corrupt")

	// ErrContentNotFound indicates no ciphertext is stored under the
	// requested hash.
	ErrContentNotFound = errors.New("content not found")

	// ErrEmptyContent indicates an attempt to encrypt a zero-length blob.
	ErrEmptyContent = errors.New("empty content")
)
