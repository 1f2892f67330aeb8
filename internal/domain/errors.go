package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch without reading codes.
type Kind int

const (
	KindPlatform Kind = iota
	KindPermission
	KindInvalidArgument
	KindUnsupported
	KindSend
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnsupported:
		return "unsupported"
	case KindSend:
		return "send"
	default:
		return "platform"
	}
}

// Stable codes returned to callers.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeGeneric          = "ERROR"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeNotSupported     = "NOT_SUPPORTED"
	CodeUnknown          = "UNKNOWN_ERROR"
)

// Sentinels for errors.Is. Platform adapters return ErrInvalidArgument and
// ErrUnsupported (wrapped) from a synchronous send to have it reclassified.
var (
	ErrPermission      = errors.New("permission not granted")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("operation not supported")
	ErrPlatform        = errors.New("platform failure")
	ErrSend            = errors.New("sms send failed")
)

// Error is the single error type the bridge hands back to callers. Code is the
// symbolic code, Message the human readable description.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrPermission:
		return e.Kind == KindPermission
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	case ErrPlatform:
		return e.Kind == KindPlatform
	case ErrSend:
		return e.Kind == KindSend
	}
	return false
}

func PermissionError(message string) *Error {
	return &Error{Kind: KindPermission, Code: CodePermissionDenied, Message: message}
}

func InvalidArgumentError(err error) *Error {
	return &Error{Kind: KindInvalidArgument, Code: CodeInvalidArguments, Message: "Invalid arguments provided", Err: err}
}

func UnsupportedError(err error) *Error {
	return &Error{Kind: KindUnsupported, Code: CodeNotSupported, Message: "Sending SMS is not supported on your device", Err: err}
}

func PlatformError(message string, err error) *Error {
	return &Error{Kind: KindPlatform, Code: CodeGeneric, Message: message, Err: err}
}

func SendError(code, message string) *Error {
	return &Error{Kind: KindSend, Code: code, Message: message}
}

// AsError extracts the bridge Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
