// Package wire frames replication payloads for the transport: CBOR for
// serialization, LZ4 block compression on top. Every frame starts with a
// one-byte method tag and the little-endian uncompressed payload size, so
// a receiver can size its buffer and refuse bombs before touching the
// body.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

const (
	methodRaw = 0x00
	methodLZ4 = 0x01

	headerSize = 5
)

// DefaultLimit caps the uncompressed payload size Decode will
// materialize when the caller passes no limit of its own.
const DefaultLimit = 8 << 20

var (
	// ErrBadFrame marks frames that cannot be unframed: short headers,
	// unknown method tags, and bodies that do not match their declared
	// size.
	ErrBadFrame = errors.New("wire: malformed frame")

	// ErrFrameTooLarge marks frames whose declared uncompressed size
	// exceeds the receiver's limit.
	ErrFrameTooLarge = errors.New("wire: frame exceeds size limit")
)

// Encode serializes v to CBOR and frames the result.
func Encode(v any) ([]byte, error) {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return Frame(payload), nil
}

// Frame wraps an already-serialized payload with the method tag and size
// header, compressing when LZ4 actually wins. Incompressible payloads
// travel raw, tagged as such.
func Frame(payload []byte) []byte {
	buf := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(payload)))

	dst := make([]byte, lz4.CompressBlockBound(len(payload)))
	var c lz4.Compressor
	if n, err := c.CompressBlock(payload, dst); err == nil && n > 0 && n < len(payload) {
		buf[0] = methodLZ4
		return append(buf, dst[:n]...)
	}
	buf[0] = methodRaw
	return append(buf, payload...)
}

// Decode unframes and deserializes into v. A limit of 0 means
// DefaultLimit.
func Decode(frame []byte, v any, limit int) error {
	payload, err := Unframe(frame, limit)
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("wire: decode: %w", err)
	}
	return nil
}

// Unframe validates a frame's header and returns its uncompressed
// payload. The size check runs before any allocation, so a header
// claiming an absurd size fails cheaply.
func Unframe(frame []byte, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(frame) < headerSize {
		return nil, ErrBadFrame
	}
	size := binary.LittleEndian.Uint32(frame[1:headerSize])
	if uint64(size) > uint64(limit) {
		return nil, ErrFrameTooLarge
	}
	body := frame[headerSize:]
	switch frame[0] {
	case methodRaw:
		if len(body) != int(size) {
			return nil, ErrBadFrame
		}
		return body, nil
	case methodLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if n != int(size) {
			return nil, ErrBadFrame
		}
		return dst, nil
	default:
		return nil, ErrBadFrame
	}
}
