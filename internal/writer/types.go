package writer

import (
	"errors"
	"time"

	"github.com/bademirci/prediction-markets/internal/retry"
)

// Backpressure policies for a full buffer.
const (
	BackpressureReject = "reject"
	BackpressureBlock  = "block"
)

// Policies for a batch that exhausted its flush retries.
const (
	OnExhaustedSpill = "spill"
	OnExhaustedDrop  = "drop"
)

var (
	// ErrBufferFull is returned by Submit when the buffer is at capacity
	// and the backpressure policy did not admit the rows.
	ErrBufferFull = errors.New("writer buffer full")

	// ErrStopped is returned by Submit after Stop has been called.
	ErrStopped = errors.New("writer stopped")
)

// Config contains configuration for the batch writers.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferCapacity bounds the rows queued ahead of the flush worker.
	BufferCapacity int

	// Backpressure is "reject" or "block".
	Backpressure string

	// BlockTimeout bounds how long a blocking Submit waits for space.
	BlockTimeout time.Duration

	// Retry governs flush attempts against the database.
	Retry retry.Policy

	// OnExhausted is "spill" or "drop".
	OnExhausted string

	// SpillDir is where exhausted batches are written as JSON lines.
	SpillDir string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      1000,
		FlushInterval:  time.Second,
		BufferCapacity: 50000,
		Backpressure:   BackpressureReject,
		BlockTimeout:   time.Second,
		Retry:          retry.DefaultPolicy(),
		OnExhausted:    OnExhaustedSpill,
	}
}

// TableStats holds counters for one destination table.
type TableStats struct {
	Submitted int64
	Rejected  int64
	Inserted  int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Spilled   int64
	Dropped   int64
	Queued    int64
}

// Stats aggregates per-table counters.
type Stats struct {
	Trades     TableStats
	BookLevels TableStats
	Markets    TableStats
}
