package cache

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiercache/internal/compression"
)

func newCodecCoordinator(t *testing.T, algo compression.Algorithm, minSize int) *Coordinator {
	t.Helper()

	c, err := New(nil, nil, Options{
		CompressionMinSize: minSize,
		Compression:        compression.Config{Algorithm: algo, Level: -1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEncodePayload(t *testing.T) {
	t.Run("small values stay raw", func(t *testing.T) {
		c := newCodecCoordinator(t, compression.AlgorithmGzip, 1024)

		encoded, err := c.encodePayload([]byte("small"), false)
		require.NoError(t, err)
		assert.Equal(t, codecRaw, encoded[0])
		assert.Equal(t, []byte("small"), encoded[1:])
	})

	t.Run("large values are compressed", func(t *testing.T) {
		c := newCodecCoordinator(t, compression.AlgorithmGzip, 64)

		value := bytes.Repeat([]byte("abcdefgh"), 512)
		encoded, err := c.encodePayload(value, false)
		require.NoError(t, err)
		assert.Equal(t, codecGzip, encoded[0])
		assert.Less(t, len(encoded), len(value))

		decoded, err := c.decodePayload(encoded)
		require.NoError(t, err)
		assert.Equal(t, value, decoded)
	})

	t.Run("force flag compresses below the threshold", func(t *testing.T) {
		c := newCodecCoordinator(t, compression.AlgorithmDeflate, 1<<20)

		value := bytes.Repeat([]byte("xy"), 256)
		encoded, err := c.encodePayload(value, true)
		require.NoError(t, err)
		assert.Equal(t, codecDeflate, encoded[0])

		decoded, err := c.decodePayload(encoded)
		require.NoError(t, err)
		assert.Equal(t, value, decoded)
	})

	t.Run("incompressible values fall back to raw", func(t *testing.T) {
		c := newCodecCoordinator(t, compression.AlgorithmGzip, 4)

		// A short high-entropy value grows under gzip framing.
		value := []byte{0x01, 0xfe, 0x42, 0x99, 0x7a, 0x13, 0xd6, 0x08}
		encoded, err := c.encodePayload(value, true)
		require.NoError(t, err)
		assert.Equal(t, codecRaw, encoded[0])
		assert.Equal(t, value, encoded[1:])
	})

	t.Run("none algorithm never compresses", func(t *testing.T) {
		c := newCodecCoordinator(t, compression.AlgorithmNone, 1)

		value := bytes.Repeat([]byte("z"), 4096)
		encoded, err := c.encodePayload(value, true)
		require.NoError(t, err)
		assert.Equal(t, codecRaw, encoded[0])
	})
}

func TestDecodePayload(t *testing.T) {
	c := newCodecCoordinator(t, compression.AlgorithmGzip, 1024)

	t.Run("empty payload is rejected", func(t *testing.T) {
		_, err := c.decodePayload(nil)
		assert.Error(t, err)
	})

	t.Run("unknown marker is rejected", func(t *testing.T) {
		_, err := c.decodePayload([]byte{0xff, 0x01, 0x02})
		assert.Error(t, err)
	})

	t.Run("decode is independent of the configured algorithm", func(t *testing.T) {
		// Write with deflate, read with a gzip-configured coordinator.
		writer := newCodecCoordinator(t, compression.AlgorithmDeflate, 4)

		value := bytes.Repeat([]byte("payload"), 128)
		encoded, err := writer.encodePayload(value, true)
		require.NoError(t, err)
		require.Equal(t, codecDeflate, encoded[0])

		decoded, err := c.decodePayload(encoded)
		require.NoError(t, err)
		assert.Equal(t, value, decoded)
	})
}

func TestCompressionEndToEnd(t *testing.T) {
	l2 := newMockStore("l2")
	l3 := newMockDurable("l3")

	c, err := New(l2, l3, Options{
		CompressionMinSize: 64,
		Compression:        compression.Config{Algorithm: compression.AlgorithmGzip, Level: -1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	value := bytes.Repeat([]byte("session-data-"), 200)

	require.NoError(t, c.Set(ctx, "big", value, SetOptions{}))
	c.Flush()

	stored := l3.payload("big")
	require.NotNil(t, stored)
	assert.Equal(t, codecGzip, stored[0])
	assert.Less(t, len(stored), len(value))

	// Drop Tier 1 so the read has to decode the slower-tier payload.
	c.l1.Clear()

	res := c.Get(ctx, "big")
	require.NoError(t, res.Err)
	require.True(t, res.Hit)
	assert.Equal(t, SourceL2, res.Source)
	assert.Equal(t, value, res.Value)
}
