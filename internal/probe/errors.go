package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Kind categorizes a probe failure. Kinds surface verbatim in the served
// JSON, so they are stable strings rather than numeric codes.
type Kind string

const (
	KindConnectionRefused Kind = "connection_refused"
	KindConnectionReset   Kind = "connection_reset"
	KindTimeout           Kind = "timeout"
	KindUnreachable       Kind = "unreachable"
	KindProtocolGarbage   Kind = "protocol_garbage"
	KindClosedMidPacket   Kind = "closed_mid_packet"
	KindTLSHandshake      Kind = "tls_handshake"
	KindInternal          Kind = "internal"
)

// Error is a probe failure with its classified kind. Classification happens
// once, at the network-call boundary, never by matching error text.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps err into an *Error with the matching kind. Pre-classified
// errors pass through untouched.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{Kind: KindConnectionRefused, Err: err}
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return &Error{Kind: KindConnectionReset, Err: err}
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return &Error{Kind: KindUnreachable, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &Error{Kind: KindClosedMidPacket, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindInternal, Err: err}
}
