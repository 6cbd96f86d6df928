package result

import (
	"errors"
	"fmt"
)

// Code is a platform result word. A code is a failure when its signed value is negative.
type Code uint32

// Level, summary and module values used when composing codes.
const (
	LevelSuccess   = 0x00
	LevelInfo      = 0x01
	LevelStatus    = 0x19
	LevelTemporary = 0x1A
	LevelPermanent = 0x1B
	LevelUsage     = 0x1C
	LevelFatal     = 0x1F

	SummarySuccess       = 0
	SummaryWouldBlock    = 2
	SummaryOutOfResource = 3
	SummaryNotFound      = 4
	SummaryInvalidState  = 5
	SummaryNotSupported  = 6
	SummaryInvalidArg    = 7
	SummaryWrongArg      = 8
	SummaryCanceled      = 9
	SummaryInternal      = 11

	ModuleCommon = 0
	ModuleKernel = 1
	ModuleOS     = 6
	ModulePM     = 22
	ModuleSRV    = 25
	ModuleApp    = 254
)

// Make composes a code from its fields.
func Make(level, summary, module, description uint32) Code {
	return Code((level&0x1F)<<27 | (summary&0x3F)<<21 | (module&0xFF)<<10 | description&0x3FF)
}

// Well-known codes.
var (
	Success Code = 0

	InvalidHandle     = Make(LevelPermanent, SummaryInvalidArg, ModuleKernel, 0x3F7)
	NotFound          = Make(LevelPermanent, SummaryNotFound, ModuleKernel, 0x3FA)
	OutOfHandles      = Make(LevelPermanent, SummaryOutOfResource, ModuleKernel, 0x3F5)
	InvalidCommand    = Make(LevelPermanent, SummaryWrongArg, ModuleOS, 0x2F)
	SessionClosed     = Make(LevelStatus, SummaryCanceled, ModuleOS, 0x1A)
	Timeout           = Make(LevelInfo, SummaryCanceled, ModuleOS, 0x3FE)
	MaxSessions       = Make(LevelPermanent, SummaryOutOfResource, ModuleOS, 0x9)
	InvalidDescriptor = Make(LevelPermanent, SummaryInvalidArg, ModuleOS, 0x15)
	Unavailable       = Make(LevelTemporary, SummaryNotFound, ModuleOS, 0x3EF)

	ServiceNotRegistered = Make(LevelTemporary, SummaryWouldBlock, ModuleSRV, 1)
	ClientNotRegistered  = Make(LevelPermanent, SummaryInvalidState, ModuleSRV, 2)
	AlreadyRegistered    = Make(LevelPermanent, SummaryInvalidState, ModuleSRV, 4)
	NameTooLong          = Make(LevelPermanent, SummaryInvalidArg, ModuleSRV, 6)
	AccessDenied         = Make(LevelPermanent, SummaryWrongArg, ModuleSRV, 7)
	NoNotification       = Make(LevelStatus, SummaryNotFound, ModuleSRV, 8)
	TooManySubscriptions = Make(LevelPermanent, SummaryOutOfResource, ModuleSRV, 9)
)

// Failed reports whether the code denotes failure.
func (c Code) Failed() bool {
	return int32(c) < 0
}

// Succeeded reports whether the code denotes success.
func (c Code) Succeeded() bool {
	return !c.Failed()
}

// Level returns the level field.
func (c Code) Level() uint32 { return uint32(c) >> 27 & 0x1F }

// Summary returns the summary field.
func (c Code) Summary() uint32 { return uint32(c) >> 21 & 0x3F }

// Module returns the module field.
func (c Code) Module() uint32 { return uint32(c) >> 10 & 0xFF }

// Description returns the description field.
func (c Code) Description() uint32 { return uint32(c) & 0x3FF }

// Error lets a Code travel as an error value out of a kernel.
func (c Code) Error() string {
	return fmt.Sprintf("result 0x%08X (level=%d summary=%d module=%d desc=%d)",
		uint32(c), c.Level(), c.Summary(), c.Module(), c.Description())
}

// String returns the hex form of the code.
func (c Code) String() string {
	return fmt.Sprintf("0x%08X", uint32(c))
}

// Kind separates the stage at which an operation failed.
type Kind int

const (
	// KindTransport means the exchange itself failed and nothing was decoded.
	KindTransport Kind = iota
	// KindProtocol means the exchange succeeded but the response status is a failure.
	KindProtocol
	// KindInit means the session handshake failed and the connection was rolled back.
	KindInit
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindInit:
		return "init"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by service operations.
type Error struct {
	Kind Kind
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && !errors.Is(e.Err, e.Code) {
		return fmt.Sprintf("%s: %s failure %s: %v", e.Op, e.Kind, e.Code.String(), e.Err)
	}
	return fmt.Sprintf("%s: %s failure %s", e.Op, e.Kind, e.Code.String())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport builds a transport-kind error. A Code carried by err is preserved.
func Transport(op string, err error) *Error {
	code := Unavailable
	var c Code
	if errors.As(err, &c) {
		code = c
	}
	return &Error{Kind: KindTransport, Op: op, Code: code, Err: err}
}

// Protocol builds a protocol-kind error from a response status.
func Protocol(op string, code Code) *Error {
	return &Error{Kind: KindProtocol, Op: op, Code: code}
}

// Init wraps a handshake failure.
func Init(op string, err error) *Error {
	code := Unavailable
	var e *Error
	var c Code
	switch {
	case errors.As(err, &e):
		code = e.Code
	case errors.As(err, &c):
		code = c
	}
	return &Error{Kind: KindInit, Op: op, Code: code, Err: err}
}

// IsKind reports whether err carries an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// CodeOf extracts the result code from err. A nil error maps to Success.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unavailable
}
