// Package compression provides value compression for the slower cache tiers.
// Tier 1 stores values uncompressed; the coordinator compresses payloads
// above a size threshold before handing them to Tier 2 and Tier 3.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Algorithm identifies a compression algorithm
type Algorithm string

const (
	// AlgorithmNone disables compression
	AlgorithmNone Algorithm = "none"
	// AlgorithmGzip selects gzip compression
	AlgorithmGzip Algorithm = "gzip"
	// AlgorithmDeflate selects raw deflate compression
	AlgorithmDeflate Algorithm = "deflate"
)

// DefaultMinSize is the payload size below which compression is skipped
const DefaultMinSize = 1024

// Config controls how values are compressed
type Config struct {
	Algorithm Algorithm
	// MinSize is the minimum payload size in bytes worth compressing
	MinSize int
	// Level is the compression level; -1 means the algorithm default
	Level int
}

// NewDefaultConfig returns the default compression configuration
func NewDefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmGzip,
		MinSize:   DefaultMinSize,
		Level:     -1,
	}
}

// Compressor compresses and decompresses byte payloads
type Compressor interface {
	Name() Algorithm
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// New creates a compressor for the configured algorithm
func New(config Config) (Compressor, error) {
	switch config.Algorithm {
	case AlgorithmNone, "":
		return NoOp{}, nil
	case AlgorithmGzip:
		return &gzipCompressor{level: config.Level}, nil
	case AlgorithmDeflate:
		return &deflateCompressor{level: config.Level}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// NoOp is a pass-through compressor
type NoOp struct{}

// Name returns the algorithm identifier
func (NoOp) Name() Algorithm { return AlgorithmNone }

// Compress returns the data unchanged
func (NoOp) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns the data unchanged
func (NoOp) Decompress(data []byte) ([]byte, error) { return data, nil }

type gzipCompressor struct {
	level int
}

func (g *gzipCompressor) Name() Algorithm { return AlgorithmGzip }

func (g *gzipCompressor) Compress(data []byte) ([]byte, error) {
	level := g.level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	return out, nil
}

type deflateCompressor struct {
	level int
}

func (d *deflateCompressor) Name() Algorithm { return AlgorithmDeflate }

func (d *deflateCompressor) Compress(data []byte) ([]byte, error) {
	level := d.level
	if level == 0 {
		level = flate.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize deflate stream: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *deflateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	return out, nil
}
