// Package apperr defines the error taxonomy shared by every stage of the
// voice-to-form pipeline.
//
// Each failure is a sentinel (ErrAuth, ErrShorten, ...) wrapped together with
// a message and the underlying cause. Callers match the category with
// errors.Is and still see the full cause chain in logs.
package apperr

import (
	"errors"
)

var (
	ErrSignature           = errors.New("invalid signature")
	ErrAuth                = errors.New("authorization failed")
	ErrStateInvalid        = errors.New("invalid authorization state")
	ErrMalformedAIResponse = errors.New("malformed ai response")
	ErrExternalAPI         = errors.New("external api error")
	ErrShorten             = errors.New("shorten failed")
	ErrAudio               = errors.New("audio processing failed")
)

type wrapError struct {
	underlying error
	msg        string
	cause      error
}

var _ error = (*wrapError)(nil)

func New(underlying error, msg string, cause error) error {
	return &wrapError{
		underlying: underlying,
		msg:        msg,
		cause:      cause,
	}
}

func Auth(msg string, cause error) error {
	return New(ErrAuth, msg, cause)
}

func State(msg string, cause error) error {
	return New(ErrStateInvalid, msg, cause)
}

func MalformedAI(msg string, cause error) error {
	return New(ErrMalformedAIResponse, msg, cause)
}

func ExternalAPI(msg string, cause error) error {
	return New(ErrExternalAPI, msg, cause)
}

func Shorten(msg string, cause error) error {
	return New(ErrShorten, msg, cause)
}

func Audio(msg string, cause error) error {
	return New(ErrAudio, msg, cause)
}

func (err *wrapError) Error() string {
	if err == nil {
		return "(*wrapError)(nil)"
	}
	message := err.underlying.Error() + ": " + err.msg
	if err.cause != nil {
		message += ": " + err.cause.Error()
	}
	return message
}

func (err *wrapError) Unwrap() []error {
	if err.cause == nil {
		return []error{err.underlying}
	}
	return []error{err.underlying, err.cause}
}
