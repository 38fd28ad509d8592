package sdr

import "fmt"

// Error is a device level error. Codes follow the libhackrf error space so
// they can be told apart from the sweep engine's own codes.
type Error struct {
	Code int
	Name string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Name, e.Code)
}

var (
	ErrInvalidParam        = &Error{-2, "invalid parameter(s)"}
	ErrNotFound            = &Error{-5, "HackRF not found"}
	ErrBusy                = &Error{-6, "HackRF busy"}
	ErrNoMem               = &Error{-11, "insufficient memory"}
	ErrLibUSB              = &Error{-1000, "USB error"}
	ErrThread              = &Error{-1001, "transfer thread error"}
	ErrStreamingThread     = &Error{-1002, "streaming thread encountered an error"}
	ErrStreamingStopped    = &Error{-1003, "streaming stopped"}
	ErrStreamingExitCalled = &Error{-1004, "streaming terminated"}
	ErrOther               = &Error{-9999, "unspecified error"}
)
