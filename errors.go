package ketgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/internal/dispatch"
	"github.com/hupe1980/ketgo/internal/interchange"
	"github.com/hupe1980/ketgo/internal/measure"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

var (
	// ErrClosed is returned when operating on a closed simulator.
	ErrClosed = errors.New("simulator is closed")

	// ErrInvalidQubitCount is returned for qubit counts the layout cannot hold.
	ErrInvalidQubitCount = errors.New("invalid qubit count")

	// ErrUnsupportedProcessCount is returned when the rank count is not a power of two.
	ErrUnsupportedProcessCount = errors.New("unsupported process count")

	// ErrInvalidConfig is returned for settings that do not fit the qubit count,
	// or when the ranks disagree on the configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrWrongCommunicatorSize is returned when the communicator size does not
	// match the layout.
	ErrWrongCommunicatorSize = errors.New("wrong communicator size")

	// ErrUnsupportedPageOperation is returned when no executor handles the
	// operand layout of a gate.
	ErrUnsupportedPageOperation = errors.New("unsupported page operation")

	// ErrDuplicateQubit is returned when a qubit appears twice in one operation.
	ErrDuplicateQubit = errors.New("duplicate qubit")

	// ErrInvalidGate is returned for gates without a kernel or with the wrong
	// number of operands.
	ErrInvalidGate = errors.New("invalid gate")

	// ErrZeroProbability is returned when projecting onto a branch with no weight.
	ErrZeroProbability = errors.New("zero probability")

	// ErrMemoryLimitExceeded is returned when a reservation exceeds WithMemoryLimit.
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

	// ErrTransport is returned when the communicator fails. The run cannot be
	// recovered.
	ErrTransport = errors.New("transport failure")
)

// ErrQubitOutOfRange indicates a logical qubit outside the register.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrQubitOutOfRange struct {
	Qubit     qubit.Qubit
	NumQubits int
	cause     error
}

func (e *ErrQubitOutOfRange) Error() string {
	return fmt.Sprintf("qubit out of range: %d (qubits: %d)", e.Qubit, e.NumQubits)
}

func (e *ErrQubitOutOfRange) Unwrap() error { return e.cause }

func validateQubits(n int, qs ...qubit.Qubit) error {
	for _, q := range qs {
		if int(q) >= n {
			return &ErrQubitOutOfRange{Qubit: q, NumQubits: n, cause: qubit.ErrQubitOutOfRange}
		}
	}
	return qubit.Validate(n, qs...)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Configuration.
	if errors.Is(err, partition.ErrInvalidQubitCount) || errors.Is(err, qubit.ErrInvalidQubitCount) {
		return fmt.Errorf("%w: %w", ErrInvalidQubitCount, err)
	}
	if errors.Is(err, partition.ErrUnsupportedProcessCount) {
		return fmt.Errorf("%w: %w", ErrUnsupportedProcessCount, err)
	}
	if errors.Is(err, partition.ErrInvalidPageQubits) || errors.Is(err, partition.ErrInvalidOnCacheQubits) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if errors.Is(err, measure.ErrNoRandomSource) || errors.Is(err, measure.ErrInvalidShots) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if errors.Is(err, interchange.ErrWrongCommunicatorSize) {
		return fmt.Errorf("%w: %w", ErrWrongCommunicatorSize, err)
	}
	if errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrMemoryLimitExceeded, err)
	}

	// Execution.
	if errors.Is(err, dispatch.ErrUnsupportedPageOperation) || errors.Is(err, interchange.ErrTooManyOperands) {
		return fmt.Errorf("%w: %w", ErrUnsupportedPageOperation, err)
	}
	if errors.Is(err, qubit.ErrDuplicateQubit) {
		return fmt.Errorf("%w: %w", ErrDuplicateQubit, err)
	}
	if errors.Is(err, gate.ErrMissingKernel) || errors.Is(err, gate.ErrArity) {
		return fmt.Errorf("%w: %w", ErrInvalidGate, err)
	}
	if errors.Is(err, measure.ErrZeroProbability) {
		return fmt.Errorf("%w: %w", ErrZeroProbability, err)
	}
	var ce *comm.Error
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return err
}
