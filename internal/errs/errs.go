// Package errs defines the error taxonomy shared by the service layers.
// Every error crossing a package boundary carries a Code so the API layer
// can map it to a status without string matching.
package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation     Code = "validation"
	CodeNotFound       Code = "not_found"
	CodeDuplicateFace  Code = "duplicate_face"
	CodeNoFaceDetected Code = "no_face_detected"
	CodeMultipleFaces  Code = "multiple_faces"
	CodeStorage        Code = "storage"
	CodeCaptureBusy    Code = "capture_busy"
	CodeAmbiguous      Code = "ambiguous_match"
	CodeLiveness       Code = "liveness_not_confirmed"

	// Auth variants per the credential contract.
	CodeAuthMalformed Code = "auth_malformed"
	CodeAuthExpired   Code = "auth_expired"
	CodeAuthUnknown   Code = "auth_unknown_subject"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the taxonomy code from err, or "" if err is untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsAuth reports whether err is any credential-validation failure.
func IsAuth(err error) bool {
	switch CodeOf(err) {
	case CodeAuthMalformed, CodeAuthExpired, CodeAuthUnknown:
		return true
	}
	return false
}
