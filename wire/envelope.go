// Package wire defines the manager/worker transport protocol: a
// CBOR-encoded envelope sent as one binary message over a gorilla/websocket
// connection. WriteFrame/ReadFrame add a length prefix for stream
// transports.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/teranos/goload/errors"
)

// Kind identifies the payload carried by an Envelope.
type Kind string

const (
	// KindHello is sent by a worker on connect: its load_test_hash, so the
	// manager can validate it before handing out an allotment. It carries
	// no metrics delta.
	KindHello Kind = "hello"
	// KindAllotment is sent by the manager in reply to a valid KindHello:
	// the slice of users this worker should run.
	KindAllotment Kind = "allotment"
	// KindCommand is sent by the manager to drive worker lifecycle: wait,
	// run, or exit.
	KindCommand Kind = "command"
	// KindDelta is sent periodically by a worker: the metrics recorded
	// since its previous delta.
	KindDelta Kind = "delta"
	// KindReject is sent by the manager instead of KindAllotment when a
	// worker's load_test_hash doesn't match and --no-hash-check wasn't
	// set.
	KindReject Kind = "reject"
)

// Envelope is the outermost wire structure. Exactly one of the payload
// fields is populated, selected by Kind.
type Envelope struct {
	Kind Kind `cbor:"kind"`

	Hello     *Hello     `cbor:"hello,omitempty"`
	Allotment *Allotment `cbor:"allotment,omitempty"`
	Command   *Command   `cbor:"command,omitempty"`
	Delta     *Delta     `cbor:"delta,omitempty"`
	Reject    *Reject    `cbor:"reject,omitempty"`
}

// Hello is a worker's connection handshake.
type Hello struct {
	LoadTestHash uint32 `cbor:"load_test_hash"`
	WorkerID     int    `cbor:"worker_id"`
}

// Reject is the manager's response to a Hello whose hash doesn't match.
type Reject struct {
	Reason string `cbor:"reason"`
}

// ClientCommand is the manager's directive to a worker, a tagged enum on
// the wire rather than a string so its encoding is stable independent of
// any future rename.
type ClientCommand uint8

const (
	CommandWait ClientCommand = 0
	CommandRun  ClientCommand = 1
	CommandExit ClientCommand = 2
)

func (c ClientCommand) String() string {
	switch c {
	case CommandWait:
		return "wait"
	case CommandRun:
		return "run"
	case CommandExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Command carries a ClientCommand plus, for CommandRun, the run parameters
// a worker needs that aren't in its Allotment (e.g. a synchronized start
// time isn't modeled here; workers start on receipt of CommandRun).
type Command struct {
	Command ClientCommand `cbor:"command"`
}

// Allotment is the slice of the overall user population a worker is
// responsible for hatching, assigned once at connect time.
type Allotment struct {
	WorkerID           int     `cbor:"worker_id"`
	Users              int     `cbor:"users"`
	WeightedUserOffset int     `cbor:"weighted_user_offset"`
	HatchRate          float64 `cbor:"hatch_rate"`
	RunTimeSeconds     int64   `cbor:"run_time_seconds"`
	ThrottleRequests   int     `cbor:"throttle_requests"`
	Host               string  `cbor:"host"`
}

// Delta carries one worker's metrics snapshot since its previous delta, as
// a flattened per-endpoint bucket list (CBOR can't key maps with
// non-string-literal ambiguity as cleanly as a slice, and a slice keeps
// encoding deterministic for hashing in tests).
type Delta struct {
	WorkerID int              `cbor:"worker_id"`
	Buckets  []EndpointBucket `cbor:"buckets"`
	Final    bool             `cbor:"final"`
}

// EndpointBucket is one endpoint's aggregated counters, wire-shaped for
// CBOR transport.
type EndpointBucket struct {
	Endpoint  string   `cbor:"endpoint"`
	Total     uint64   `cbor:"total"`
	Successes uint64   `cbor:"successes"`
	Failures  uint64   `cbor:"failures"`
	Histogram []uint64 `cbor:"histogram"`
	MinMS     int64    `cbor:"min_ms"`
	MaxMS     int64    `cbor:"max_ms"`
}

var (
	// encMode uses CBOR's core deterministic encoding options so that two
	// equal envelopes always serialize to the same bytes — load_test_hash
	// validation across worker/manager versions depends on this.
	encMode, _ = cbor.CoreDetEncOptions().EncMode()
)

// Marshal encodes an Envelope using deterministic CBOR.
func Marshal(e Envelope) ([]byte, error) {
	b, err := encMode.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal envelope")
	}
	return b, nil
}

// Unmarshal decodes an Envelope.
func Unmarshal(b []byte) (Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(b, &e); err != nil {
		return Envelope{}, errors.Wrap(err, "wire: unmarshal envelope")
	}
	return e, nil
}

// maxFrameBytes bounds a single frame to guard against a corrupt or
// malicious length prefix causing an unbounded allocation.
const maxFrameBytes = 64 << 20

// WriteFrame writes a uint32 big-endian length prefix followed by the
// CBOR-encoded envelope, the framing gorilla/websocket's message mode
// doesn't need but a raw stream transport does. The manager and worker do
// not use it; requester/framed has its own framing.
func WriteFrame(w io.Writer, e Envelope) error {
	b, err := Marshal(e)
	if err != nil {
		return err
	}
	if len(b) > maxFrameBytes {
		return errors.Newf("wire: frame of %d bytes exceeds max %d", len(b), maxFrameBytes)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))
	if _, err := w.Write(prefix[:]); err != nil {
		return errors.Wrap(err, "wire: write frame length")
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "wire: write frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed CBOR envelope.
func ReadFrame(r io.Reader) (Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Envelope{}, errors.Wrap(err, "wire: read frame length")
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameBytes {
		return Envelope{}, errors.Newf("wire: frame of %d bytes exceeds max %d", n, maxFrameBytes)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Envelope{}, errors.Wrap(err, "wire: read frame body")
	}

	return Unmarshal(buf)
}
