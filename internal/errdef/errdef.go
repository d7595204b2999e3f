package errdef

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeParse      Code = "parse"
	CodeFilesystem Code = "filesystem"
	CodeStorage    Code = "storage"
	CodeValidation Code = "validation"
	CodeHTTP       Code = "http"
	CodeHistory    Code = "history"
	CodeVault      Code = "vault"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message != "" {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf walks the error chain and returns the first tagged code.
func CodeOf(err error) Code {
	var tagged *Error
	if errors.As(err, &tagged) && tagged != nil {
		return tagged.Code
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
