package wire

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type framePayload struct {
	Label string  `cbor:"label"`
	Ticks []int64 `cbor:"ticks"`
	Blob  []byte  `cbor:"blob,omitempty"`
}

func TestRoundTripCompressesRepetitivePayload(t *testing.T) {
	v := framePayload{Label: "snapshot", Ticks: make([]int64, 4096)}
	for i := range v.Ticks {
		v.Ticks[i] = 42
	}

	frame, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, byte(methodLZ4), frame[0])

	size := binary.LittleEndian.Uint32(frame[1:5])
	assert.Less(t, len(frame), int(size), "frame should be smaller than the raw payload")

	var got framePayload
	require.NoError(t, Decode(frame, &got, 0))
	assert.Equal(t, v, got)
}

func TestRoundTripFallsBackToRawForIncompressible(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := framePayload{Label: "noise", Blob: make([]byte, 2048)}
	rng.Read(v.Blob)

	frame, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, byte(methodRaw), frame[0])

	var got framePayload
	require.NoError(t, Decode(frame, &got, 0))
	assert.Equal(t, v, got)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	good, err := Encode(framePayload{Label: "x", Ticks: make([]int64, 1024)})
	require.NoError(t, err)
	require.Equal(t, byte(methodLZ4), good[0])

	truncated := good[:3]

	unknownMethod := append([]byte(nil), good...)
	unknownMethod[0] = 0x07

	// Keeps the method tag and declared size but cuts the block short, so
	// decompression cannot produce the promised byte count.
	truncatedBlock := append([]byte(nil), good[:headerSize+4]...)

	lyingRaw := Frame([]byte("abc"))
	binary.LittleEndian.PutUint32(lyingRaw[1:], 99)

	cases := map[string][]byte{
		"truncated header": truncated,
		"unknown method":   unknownMethod,
		"truncated block":  truncatedBlock,
		"size mismatch":    lyingRaw,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			var got framePayload
			assert.ErrorIs(t, Decode(frame, &got, 0), ErrBadFrame)
		})
	}
}

func TestDecodeEnforcesSizeLimit(t *testing.T) {
	frame, err := Encode(framePayload{Label: "big", Ticks: make([]int64, 4096)})
	require.NoError(t, err)

	var got framePayload
	assert.ErrorIs(t, Decode(frame, &got, 16), ErrFrameTooLarge)
	assert.NoError(t, Decode(frame, &got, DefaultLimit))

	// A header alone can claim any size; the limit check must run before
	// allocation.
	bomb := make([]byte, headerSize)
	bomb[0] = methodLZ4
	binary.LittleEndian.PutUint32(bomb[1:], 1<<31)
	assert.ErrorIs(t, Decode(bomb, &got, 0), ErrFrameTooLarge)
}
