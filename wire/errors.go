package wire

import "github.com/teranos/goload/errors"

// ErrHashMismatch is returned when a worker's load_test_hash doesn't match
// the manager's, and --no-hash-check wasn't set to ignore it.
var ErrHashMismatch = errors.New("wire: load_test_hash mismatch")

// ErrManagerProtocol covers any envelope sequencing violation of the
// manager/worker handshake: an unexpected Kind where Hello, Allotment, or
// Command was expected.
var ErrManagerProtocol = errors.New("wire: protocol violation")
