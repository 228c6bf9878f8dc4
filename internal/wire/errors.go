package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Error taxonomy shared by both sides. Callers test with errors.Is.
var (
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportRefused  = errors.New("transport refused")
	ErrMalformedResponse = errors.New("malformed response")
	ErrPortConflict      = errors.New("port conflict")
	ErrUserCancelled     = errors.New("user cancelled")
)

var taxonomy = []error{
	ErrTransportTimeout,
	ErrTransportRefused,
	ErrMalformedResponse,
	ErrPortConflict,
	ErrUserCancelled,
}

// Classify wraps err with its taxonomy kind. Errors that already carry a
// kind, or that match none, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range taxonomy {
		if errors.Is(err, kind) {
			return err
		}
	}

	var (
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUserCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	case errors.Is(err, syscall.EADDRINUSE):
		return fmt.Errorf("%w: %w", ErrPortConflict, err)
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrTransportRefused, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return err
}

// IsTransportFailure reports whether err means the peer could not be reached.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportTimeout) || errors.Is(err, ErrTransportRefused)
}

// Label returns a short upper-case description of err for status lines.
func Label(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransportRefused):
		return "OFFLINE"
	case errors.Is(err, ErrTransportTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrMalformedResponse):
		return "BAD RESPONSE"
	case errors.Is(err, ErrPortConflict):
		return "PORT IN USE"
	case errors.Is(err, ErrUserCancelled):
		return "CANCELLED"
	default:
		return "ERROR"
	}
}
