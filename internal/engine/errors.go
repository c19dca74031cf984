package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/kllcore/internal/ir"
)

// Error represents an error reported by the engine to its caller.
//
// None of these are fatal: the engine stays live and deterministic after
// returning any of them.
//   - INVALID_SCAN_CODE: event dropped at Push, no record touched
//   - INVALID_TABLE_REFERENCE: table set rejected wholesale at Load
//   - QUEUE_OVERFLOW: event rejected by a full queue (drop-newest)
//   - UNKNOWN_CAPABILITY: a single action skipped at dispatch
//   - INVALID_EVENT: event with an unknown edge kind
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ScanCode is the offending scan code (INVALID_SCAN_CODE).
	ScanCode ir.ScanCode

	// Index is the offending table index, when one applies.
	Index int

	// Problems lists every validation failure (INVALID_TABLE_REFERENCE).
	Problems []string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidScanCode indicates an event scan code >= MaxScanCode.
	ErrCodeInvalidScanCode ErrorCode = "INVALID_SCAN_CODE"

	// ErrCodeInvalidTableReference indicates a table set failed load validation.
	ErrCodeInvalidTableReference ErrorCode = "INVALID_TABLE_REFERENCE"

	// ErrCodeQueueOverflow indicates a bounded queue rejected an element.
	ErrCodeQueueOverflow ErrorCode = "QUEUE_OVERFLOW"

	// ErrCodeUnknownCapability indicates a capability with no registered implementation.
	ErrCodeUnknownCapability ErrorCode = "UNKNOWN_CAPABILITY"

	// ErrCodeInvalidEvent indicates a malformed event other than its scan code.
	ErrCodeInvalidEvent ErrorCode = "INVALID_EVENT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Problems) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsInvalidScanCode returns true if err is an INVALID_SCAN_CODE error.
// Uses errors.As to handle wrapped errors.
func IsInvalidScanCode(err error) bool { return hasCode(err, ErrCodeInvalidScanCode) }

// IsInvalidTableReference returns true if err is a load rejection.
func IsInvalidTableReference(err error) bool { return hasCode(err, ErrCodeInvalidTableReference) }

// IsQueueOverflow returns true if err is a QUEUE_OVERFLOW error.
func IsQueueOverflow(err error) bool { return hasCode(err, ErrCodeQueueOverflow) }

// IsUnknownCapability returns true if err is an UNKNOWN_CAPABILITY error.
func IsUnknownCapability(err error) bool { return hasCode(err, ErrCodeUnknownCapability) }

// IsInvalidEvent returns true if err is an INVALID_EVENT error.
func IsInvalidEvent(err error) bool { return hasCode(err, ErrCodeInvalidEvent) }

// NewInvalidScanCodeError creates an Error for an out-of-range scan code.
func NewInvalidScanCodeError(sc ir.ScanCode, max int) *Error {
	return &Error{
		Code:     ErrCodeInvalidScanCode,
		Message:  fmt.Sprintf("scan code %d out of range (max %d)", sc, max),
		ScanCode: sc,
	}
}

// NewQueueOverflowError creates an Error for a rejected queue element.
func NewQueueOverflowError(queue string, capacity int) *Error {
	return &Error{
		Code:    ErrCodeQueueOverflow,
		Message: fmt.Sprintf("%s queue full (capacity %d)", queue, capacity),
	}
}

// NewUnknownCapabilityError creates an Error for an unbound capability.
func NewUnknownCapabilityError(index int, name string) *Error {
	return &Error{
		Code:    ErrCodeUnknownCapability,
		Message: fmt.Sprintf("capability %d (%q) has no registered implementation", index, name),
		Index:   index,
	}
}

// NewInvalidTablesError creates an Error for a rejected table set.
func NewInvalidTablesError(name string, problems []string) *Error {
	return &Error{
		Code:     ErrCodeInvalidTableReference,
		Message:  fmt.Sprintf("table set %q rejected (%d problems)", name, len(problems)),
		Problems: problems,
	}
}

// NewInvalidEventError creates an Error for an event with an unknown edge kind.
func NewInvalidEventError(edge ir.EdgeKind) *Error {
	return &Error{
		Code:    ErrCodeInvalidEvent,
		Message: fmt.Sprintf("unknown edge kind %q", edge),
	}
}

// NewUnknownBoardError creates an Error for a board with no interconnect offset.
func NewUnknownBoardError(board int, local ir.ScanCode) *Error {
	return &Error{
		Code:     ErrCodeInvalidScanCode,
		Message:  fmt.Sprintf("board %d has no interconnect offset", board),
		ScanCode: local,
		Index:    board,
	}
}
