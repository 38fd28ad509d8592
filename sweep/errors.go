package sweep

import (
	"errors"
	"fmt"
)

// Error is a sweep engine error. Codes live in a range of their own so they
// never collide with device codes (see sdr.Error).
type Error struct {
	Code int
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.msg, e.Code)
}

var (
	ErrInvalidRange      = &Error{-6000, "invalid frequency range"}
	ErrIncompatibleMode  = &Error{-6001, "incompatible with the active output mode"}
	ErrInvalidRangeCount = &Error{-6002, "too many frequency ranges"}
	ErrNotReady          = &Error{-6003, "sweep state not ready"}
	ErrInvalidFFTSize    = &Error{-6004, "invalid FFT size"}
)

// ErrSinkNotReady is returned by the encoders when no writer is configured.
var ErrSinkNotReady = errors.New("output sink not ready")
