package cache

import (
	"fmt"

	"tiercache/internal/compression"
)

// Payloads written to Tier 2/3 carry a one-byte envelope marker so reads
// know whether to decompress. Tier 1 always holds the raw value.
const (
	codecRaw     byte = 0x00
	codecGzip    byte = 0x01
	codecDeflate byte = 0x02
)

func markerFor(algo compression.Algorithm) byte {
	switch algo {
	case compression.AlgorithmGzip:
		return codecGzip
	case compression.AlgorithmDeflate:
		return codecDeflate
	default:
		return codecRaw
	}
}

// encodePayload wraps value for the slower tiers, compressing it when
// forced or when it crosses the size threshold
func (c *Coordinator) encodePayload(value []byte, force bool) ([]byte, error) {
	compress := force || len(value) >= c.opts.CompressionMinSize
	if !compress || c.compressor.Name() == compression.AlgorithmNone {
		return append([]byte{codecRaw}, value...), nil
	}

	compressed, err := c.compressor.Compress(value)
	if err != nil {
		return nil, fmt.Errorf("failed to compress value: %w", err)
	}

	// Incompressible payloads can grow; store whichever form is smaller.
	if len(compressed) >= len(value) {
		return append([]byte{codecRaw}, value...), nil
	}

	return append([]byte{markerFor(c.compressor.Name())}, compressed...), nil
}

// decodePayload unwraps a Tier 2/3 payload back into the raw value
func (c *Coordinator) decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	marker, body := data[0], data[1:]
	switch marker {
	case codecRaw:
		return body, nil
	case codecGzip:
		return decompressWith(compression.AlgorithmGzip, body)
	case codecDeflate:
		return decompressWith(compression.AlgorithmDeflate, body)
	default:
		return nil, fmt.Errorf("unknown payload marker 0x%02x", marker)
	}
}

// decompressWith decodes independently of the configured write-side
// algorithm, so a config change does not orphan previously stored values
func decompressWith(algo compression.Algorithm, body []byte) ([]byte, error) {
	compressor, err := compression.New(compression.Config{Algorithm: algo, Level: -1})
	if err != nil {
		return nil, err
	}
	out, err := compressor.Decompress(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress value: %w", err)
	}
	return out, nil
}
