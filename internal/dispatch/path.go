package dispatch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

// ErrUnsupportedPageOperation is wrapped by every UnsupportedPageOperationError.
var ErrUnsupportedPageOperation = errors.New("unsupported page operation")

// UnsupportedPageOperationError reports an operand set no executor can handle.
// It signals a missing code path, not a runtime condition, and is never retried.
type UnsupportedPageOperationError struct {
	Name   string
	Reason string
}

func (e *UnsupportedPageOperationError) Error() string {
	return fmt.Sprintf("unsupported page operation %q: %s", e.Name, e.Reason)
}

func (e *UnsupportedPageOperationError) Unwrap() error { return ErrUnsupportedPageOperation }

// Path is the executor chosen for one operation.
type Path int

const (
	// Local runs the bit-mask loop inside every page.
	Local Path = iota
	// Page loops over page groups; every operand selects pages.
	Page
	// Mixed nests a page-group loop around a nonpage bit-mask loop.
	Mixed
	// Staged moves page slices through the on-cache buffer.
	Staged
)

// Paths lists every path in order.
var Paths = []Path{Local, Page, Mixed, Staged}

func (p Path) String() string {
	switch p {
	case Local:
		return "local"
	case Page:
		return "page"
	case Mixed:
		return "mixed"
	case Staged:
		return "staged"
	default:
		return fmt.Sprintf("path(%d)", int(p))
	}
}

// IsOnPage reports whether p falls in the page bit range.
func IsOnPage(l partition.Layout, p qubit.Permutated) bool { return l.IsPage(p) }

// AnyOnPage reports whether at least one position falls in the page bit range.
func AnyOnPage(l partition.Layout, ps ...qubit.Permutated) bool {
	for _, p := range ps {
		if l.IsPage(p) {
			return true
		}
	}
	return false
}

// IsOffCache reports whether p lies above the on-cache buffer.
func IsOffCache(l partition.Layout, p qubit.Permutated) bool { return l.IsOffCache(p) }

// SelectPath picks the executor for operands at the given permutated positions.
// Every position must already be local.
func SelectPath(l partition.Layout, positions []qubit.Permutated) (Path, error) {
	kp := 0
	for _, p := range positions {
		if !l.IsLocal(p) {
			return 0, &UnsupportedPageOperationError{Reason: fmt.Sprintf("operand %s is not local", p)}
		}
		if l.IsPage(p) {
			kp++
		}
	}

	switch {
	case kp == 0:
		return Local, nil
	case kp+l.NonpageQubits > l.OnCacheQubits:
		if len(positions) > l.OnCacheQubits {
			return 0, &UnsupportedPageOperationError{
				Reason: fmt.Sprintf("%d operands exceed %d on-cache qubits", len(positions), l.OnCacheQubits),
			}
		}
		return Staged, nil
	case kp == len(positions):
		return Page, nil
	default:
		return Mixed, nil
	}
}
