package ketgo

import (
	"log/slog"

	"github.com/hupe1980/ketgo/internal/interchange"
	"github.com/hupe1980/ketgo/internal/state"
)

// PageStorage selects where the pages of each rank live.
type PageStorage struct {
	storage state.Storage
}

// String returns the storage name.
func (p PageStorage) String() string { return p.storage.Name() }

// HeapStorage keeps pages in Go heap memory. This is the default.
func HeapStorage() PageStorage { return PageStorage{storage: state.Heap{}} }

// AnonymousStorage keeps pages in an anonymous memory mapping outside the Go
// heap, so large states do not inflate GC pacing.
func AnonymousStorage() PageStorage { return PageStorage{storage: state.Anonymous{}} }

// FileStorage spills pages into a shared mapping of a file under dir. The file
// is removed on Close.
func FileStorage(dir string) PageStorage { return PageStorage{storage: state.File{Dir: dir}} }

// Selector chooses the local qubits that remote operands are swapped with.
type Selector int

const (
	// SelectTopLocal swaps with the most significant local qubits. Exchanged
	// segments are contiguous and land in place. This is the default.
	SelectTopLocal Selector = iota
	// SelectLowFree swaps with the least significant local qubits that are not
	// operands. Operands never move, at the cost of strided exchanges.
	SelectLowFree
)

func (s Selector) selector() interchange.Selector {
	if s == SelectLowFree {
		return interchange.LowFree{}
	}
	return interchange.TopLocal{}
}

type options struct {
	pageQubits       int
	onCacheQubits    int
	workers          int
	storage          PageStorage
	initialState     uint64
	exchangeUnit     int
	exchangeRate     int64
	memoryLimit      int64
	selector         Selector
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Simulator.
type Option func(*options)

// WithPageQubits sets the number of page qubits per rank. Pages are the unit
// of out-of-core storage and of in-place exchange. Default 0 (one page).
func WithPageQubits(n int) Option {
	return func(o *options) {
		o.pageQubits = n
	}
}

// WithOnCacheQubits enables page staging through an on-cache buffer of 2^n
// amplitudes. n must not exceed the nonpage qubits. Default 0 (disabled).
func WithOnCacheQubits(n int) Option {
	return func(o *options) {
		o.onCacheQubits = n
	}
}

// WithWorkers sets the number of goroutines per rank for gate loops.
// 0 uses GOMAXPROCS, 1 runs sequentially. Results are identical either way.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPageStorage selects the page storage backend.
//
// Example:
//
//	sim, _ := ketgo.New(ctx, c, 34,
//	    ketgo.WithPageQubits(6),
//	    ketgo.WithPageStorage(ketgo.FileStorage("/scratch/ketgo")),
//	)
func WithPageStorage(s PageStorage) Option {
	return func(o *options) {
		if s.storage != nil {
			o.storage = s
		}
	}
}

// WithInitialState starts the register in the computational basis state with
// the given logical index instead of |0...0>.
func WithInitialState(index uint64) Option {
	return func(o *options) {
		o.initialState = index
	}
}

// WithExchangeBufferSize sets the number of amplitudes per point-to-point
// exchange. Default one page.
func WithExchangeBufferSize(amplitudes int) Option {
	return func(o *options) {
		o.exchangeUnit = amplitudes
	}
}

// WithExchangeRateLimit caps interchange traffic at bytesPerSec per rank.
// 0 disables the limit.
func WithExchangeRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.exchangeRate = bytesPerSec
	}
}

// WithMemoryLimit caps the memory reserved for pages, the staging buffer and
// the exchange buffers. 0 disables the limit.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithSelector sets the interchange swap qubit policy.
func WithSelector(s Selector) Option {
	return func(o *options) {
		o.selector = s
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &ketgo.BasicMetricsCollector{}
//	sim, _ := ketgo.New(ctx, c, 20, ketgo.WithMetricsCollector(metrics))
//	// ... run circuit ...
//	stats := metrics.GetStats()
//	fmt.Printf("Gates: %d, Interchanged: %d bytes\n", stats.ApplyCount, stats.InterchangeBytes)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := ketgo.NewJSONLogger(slog.LevelInfo)
//	sim, _ := ketgo.New(ctx, c, 20, ketgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		storage:          HeapStorage(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
