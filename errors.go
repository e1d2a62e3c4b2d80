package spc

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means the panel could not be reached or the connection
	// was reset.
	ErrConnection = errors.New("connection error")

	// ErrTimeout means the panel did not answer within the deadline.
	ErrTimeout = errors.New("timeout")

	// ErrTLS means the handshake failed, even with the legacy profile.
	ErrTLS = errors.New("tls error")

	// ErrAuth means the panel rejected the login or the session.
	ErrAuth = errors.New("authentication failed")

	// ErrParse means the panel returned a page we can't make sense of.
	ErrParse = errors.New("could not parse panel response")

	// ErrPanel means the panel refused to do what was asked.
	ErrPanel = errors.New("panel error")

	// ErrNotConfirmed means the panel acknowledged a command, but the state
	// it reports afterwards doesn't reflect it.
	ErrNotConfirmed = fmt.Errorf("command not confirmed: %w", ErrPanel)
)

// ErrorKind returns a short label for the kind of err, suitable for logs and
// metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTLS):
		return "tls"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, ErrPanel):
		return "panel"
	default:
		return "unknown"
	}
}
