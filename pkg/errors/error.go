package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// Error is a coded failure. Message is safe to show callers; Err keeps the
// underlying cause for logs and errors.Is.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	// Origin is the file:line that created the error.
	Origin string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error carrying code's default message.
func New(code ErrorCode) *Error {
	return build(code, code.Message(), nil)
}

// Newf returns an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return build(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. A coded error already in the chain is recoded in
// place so its message survives.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		e.Code = code
		return e
	}
	return build(code, err.Error(), err)
}

// Wrapf wraps err under code with a new caller-facing message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(code, fmt.Sprintf(format, args...), err)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode returns the code of the first *Error in err's chain, Success for
// nil, and InternalServerError for uncoded errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the *Error in err's chain, wrapping foreign errors as
// InternalServerError.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return build(InternalServerError, err.Error(), err)
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Code == code
}

// ValidationError reports an invalid request field.
func ValidationError(field, reason string) *Error {
	return New(ValidationFailed).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// ConfigurationError reports a language that has no judge identifier mapped.
func ConfigurationError(language string) *Error {
	return Newf(LanguageNotSupported, "language %q is not supported by the judge", language).
		WithDetail("language", language)
}

func build(code ErrorCode, msg string, cause error) *Error {
	e := &Error{Code: code, Message: msg, Err: cause}
	// Skip build and the exported constructor.
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Origin = fmt.Sprintf("%s:%d", file, line)
	}
	return e
}
