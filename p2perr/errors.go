// Package p2perr defines the typed error codes that flow through the
// network core, as specified in spec section 7 (error handling design).
package p2perr

import "github.com/pkg/errors"

// Code identifies the category of a network core error. Unlike a plain
// sentinel error, a Code survives wrapping by github.com/pkg/errors and
// can be recovered from any wrapped error with Is.
type Code uint8

// Error codes that flow through the wire codec, channel, address book,
// and P2P coordinator.
const (
	// Success is not normally constructed as an error; handlers that take
	// a code rather than an error use it to mean "no error occurred."
	Success Code = iota
	OperationFailed
	ServiceStopped
	ChannelStopped
	SubscriberStopped
	BadStream
	AddressInUse
	NotFound
	FileSystem
	NetworkUnreachable
	AddressBlocked
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case OperationFailed:
		return "operation_failed"
	case ServiceStopped:
		return "service_stopped"
	case ChannelStopped:
		return "channel_stopped"
	case SubscriberStopped:
		return "subscriber_stopped"
	case BadStream:
		return "bad_stream"
	case AddressInUse:
		return "address_in_use"
	case NotFound:
		return "not_found"
	case FileSystem:
		return "file_system"
	case NetworkUnreachable:
		return "network_unreachable"
	case AddressBlocked:
		return "address_blocked"
	default:
		return "unknown"
	}
}

// Error is a Code wrapped with a message and (via pkg/errors) a stack
// trace captured at construction time.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

// Cause lets github.com/pkg/errors.Cause and errors.Unwrap see through
// to the wrapped error.
func (e *Error) Cause() error {
	return e.err
}

// Unwrap supports the standard errors.Is/As chain.
func (e *Error) Unwrap() error {
	return e.err
}

// New builds a new *Error for the given code with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, err: errors.New(message)}
}

// Errorf builds a new *Error for the given code with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, err: errors.Errorf(format, args...)}
}

// Wrap annotates err with message and associates it with code. If err is
// nil, Wrap returns nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: errors.Wrap(err, message)}
}

// CodeOf extracts the Code carried by err, walking the cause chain. It
// returns Success (the zero Code) with ok=false if err is nil, and
// OperationFailed with ok=false if err is non-nil but carries no Code.
func CodeOf(err error) (code Code, ok bool) {
	if err == nil {
		return Success, false
	}
	var pe *Error
	for {
		if asPe, isPe := err.(*Error); isPe {
			pe = asPe
			break
		}
		cause := errors.Unwrap(err)
		if cause == nil {
			break
		}
		err = cause
	}
	if pe == nil {
		return OperationFailed, false
	}
	return pe.Code, true
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
