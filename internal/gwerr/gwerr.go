// Package gwerr defines the error kinds used across the gateway so that
// callers can map a failure to its externally visible effect without
// string-matching error messages.
package gwerr

import "fmt"

// Kind classifies a gateway error by where it originated and how it
// should be handled, per the error table in the gateway design.
type Kind int

const (
	// Unknown is the zero value; it should never be observed outside of
	// tests exercising the zero value itself.
	Unknown Kind = iota

	// BadToken covers token decrypt/parse failures and missing tokens.
	BadToken

	// Framing covers any deviation from the Guacamole wire format.
	Framing

	// Handshake covers failures during the select/args/connect/ready
	// exchange with guacd, including timeouts.
	Handshake

	// Timeout covers a session that exceeded its inactivity deadline.
	Timeout

	// PeerClosed covers a session ended by a clean peer disconnect.
	PeerClosed

	// Cancelled covers a process-level shutdown signal.
	Cancelled

	// Internal covers anything unexpected.
	Internal
)

func (k Kind) String() string {
	switch k {
	case BadToken:
		return "BadToken"
	case Framing:
		return "Framing"
	case Handshake:
		return "Handshake"
	case Timeout:
		return "Timeout"
	case PeerClosed:
		return "PeerClosed"
	case Cancelled:
		return "Cancelled"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// GatewayError wraps an underlying error with a Kind so that the
// gateway's HTTP layer can pick the right WebSocket close code without
// re-deriving it from a message string.
type GatewayError struct {
	Kind Kind
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// New creates a GatewayError of the given kind wrapping err.
func New(kind Kind, err error) *GatewayError {
	return &GatewayError{Kind: kind, Err: err}
}

// Newf creates a GatewayError of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *GatewayError {
	return &GatewayError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err if it is (or wraps) a *GatewayError,
// otherwise Internal.
func KindOf(err error) Kind {
	var ge *GatewayError
	for err != nil {
		if g, ok := err.(*GatewayError); ok {
			ge = g
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if ge != nil {
		return ge.Kind
	}
	return Internal
}
