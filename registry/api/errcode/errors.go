package errcode

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode represents the error type. The errors are serialized via this
// type's Value, not the numeric identifier, so the wire format is stable
// across process restarts even though Code itself is assigned at
// registration time.
type ErrorCode int

// ErrorCodeUnknown is returned by Descriptor for a code that wasn't
// registered through Register.
func (ec ErrorCode) Descriptor() ErrorDescriptor {
	d, ok := errorCodeToDescriptors[ec]
	if !ok {
		return ErrorCodeUnknown.Descriptor()
	}
	return d
}

// String returns the canonical identifier, e.g. "BLOB_UNKNOWN".
func (ec ErrorCode) String() string { return ec.Descriptor().Value }

// Message returns the error's human readable message.
func (ec ErrorCode) Message() string { return ec.Descriptor().Message }

// Error implements the error interface.
func (ec ErrorCode) Error() string { return ec.Descriptor().Message }

// ErrorCode implements the ErrorCoder interface.
func (ec ErrorCode) ErrorCode() ErrorCode { return ec }

// WithMessage creates an Error with the given message overriding the
// descriptor's default, e.g. after a Sprintf with caller-supplied values.
func (ec ErrorCode) WithMessage(message string) Error {
	return Error{Code: ec, Message: message}
}

// WithDetail creates an Error carrying detail as its Detail payload and the
// descriptor's default message.
func (ec ErrorCode) WithDetail(detail interface{}) Error {
	return Error{Code: ec, Message: ec.Message(), Detail: detail}
}

// WithArgs creates an Error whose message is ec's Message with args
// substituted in via fmt.Sprintf.
func (ec ErrorCode) WithArgs(args ...interface{}) Error {
	return Error{Code: ec, Message: fmt.Sprintf(ec.Message(), args...)}
}

// MarshalJSON emits ec as its string Value, e.g. "BLOB_UNKNOWN".
func (ec ErrorCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(ec.String())
}

// UnmarshalJSON decodes a string Value back into the matching registered
// ErrorCode, or ErrorCodeUnknown if none matches.
func (ec *ErrorCode) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	desc, ok := idToDescriptors[value]
	if !ok {
		*ec = ErrorCodeUnknown
		return nil
	}
	*ec = desc.Code
	return nil
}

// ErrorDescriptor provides relevant information about a given error code.
type ErrorDescriptor struct {
	// Code is the error code that this descriptor describes.
	Code ErrorCode

	// Value provides a unique, string key, often captialized with
	// underscores, to identify the error code. This value is used as the
	// keyword for encoding error codes in a JSON envelope.
	Value string

	// Message is a short, human readable description of the error
	// condition. This should accompany a detailed explanation.
	Message string

	// Description provides a complete account of the errors purpose,
	// suitable for use in documentation.
	Description string

	// HTTPStatusCode provides the http status code that is associated with
	// this error condition.
	HTTPStatusCode int
}

// ErrorCoder is implemented by error types that carry an ErrorCode.
type ErrorCoder interface {
	ErrorCode() ErrorCode
}

// Error provides a wrapper around an ErrorCode along with the additional
// message or detail that describes a particular occurrence of that error.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// ErrorCode implements ErrorCoder.
func (e Error) ErrorCode() ErrorCode { return e.Code }

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code.String(), e.Message)
}

// Errors provides the envelope this registry's API uses for error
// responses: {"errors":[...]}. It implements error over a slice so a
// handler can return multiple Error values from a single failed request.
type Errors []error

func (errs Errors) Error() string {
	switch len(errs) {
	case 0:
		return "<nil>"
	case 1:
		return errs[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", errs[0].Error(), len(errs)-1)
	}
}

type errorsEnvelope struct {
	Errors []Error `json:"errors"`
}

// MarshalJSON converts slice of error, ensuring that each error is
// converted to the Error envelope the wire protocol expects.
func (errs Errors) MarshalJSON() ([]byte, error) {
	envelope := errorsEnvelope{Errors: make([]Error, len(errs))}
	for i, err := range errs {
		switch e := err.(type) {
		case Error:
			envelope.Errors[i] = e
		case ErrorCode:
			envelope.Errors[i] = e.WithMessage(e.Message())
		default:
			envelope.Errors[i] = ErrorCodeUnknown.WithDetail(err.Error())
		}
	}
	return json.Marshal(envelope)
}

// UnmarshalJSON deserializes an error envelope back into Errors.
func (errs *Errors) UnmarshalJSON(data []byte) error {
	var envelope errorsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	out := make(Errors, len(envelope.Errors))
	for i, e := range envelope.Errors {
		out[i] = e
	}
	*errs = out
	return nil
}

// httpStatusCode returns the HTTP status code associated with err, falling
// back to 500 for an error with no ErrorCoder.
func httpStatusCode(err error) int {
	switch e := err.(type) {
	case Errors:
		if len(e) > 0 {
			return httpStatusCode(e[0])
		}
	case ErrorCoder:
		return e.ErrorCode().Descriptor().HTTPStatusCode
	}
	return http.StatusInternalServerError
}
