package cache

// Source identifies which tier served a read
type Source string

const (
	// SourceL1 means the local bounded cache served the read
	SourceL1 Source = "L1"
	// SourceL2 means the networked cache served the read
	SourceL2 Source = "L2"
	// SourceL3 means the durable store served the read
	SourceL3 Source = "L3"
	// SourceNone means no tier held the key
	SourceNone Source = "none"
)

// Result is the outcome of a single cached read.
//
// Hit=false with a nil Err is a genuine miss. Hit=false with a non-nil
// Err means the read path was degraded (the durable tier call itself
// failed), so callers can distinguish "not cached" from "cache layer
// down" and decide whether to recompute or fail.
type Result struct {
	Key    string `json:"key"`
	Value  []byte `json:"value,omitempty"`
	Hit    bool   `json:"hit"`
	Source Source `json:"source"`
	Err    error  `json:"-"`
}

// Item is one key/value pair in a batch write
type Item struct {
	Key   string
	Value []byte
	Tags  []string
}
