package apperr

import (
  "errors"
  "fmt"
  "net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
  KindInternal Kind = iota
  KindNotFound
  KindValidation
  KindQuotaExceeded
  KindUpstream
  KindPersistence
)

type Error struct {
  Kind    Kind
  Message string
  Err     error
}

func (e *Error) Error() string {
  if e.Err != nil {
    return fmt.Sprintf("%s: %v", e.Message, e.Err)
  }
  return e.Message
}

func (e *Error) Unwrap() error {
  return e.Err
}

func NotFound(format string, args ...interface{}) *Error {
  return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
  return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func QuotaExceeded(format string, args ...interface{}) *Error {
  return &Error{Kind: KindQuotaExceeded, Message: fmt.Sprintf(format, args...)}
}

func Upstream(err error, format string, args ...interface{}) *Error {
  return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

func Persistence(err error, format string, args ...interface{}) *Error {
  return &Error{Kind: KindPersistence, Message: fmt.Sprintf(format, args...), Err: err}
}

func KindOf(err error) Kind {
  var ae *Error
  if errors.As(err, &ae) {
    return ae.Kind
  }
  return KindInternal
}

func IsNotFound(err error) bool {
  return KindOf(err) == KindNotFound
}

// HTTPStatus maps an error to the response class the caller should see.
func HTTPStatus(err error) int {
  switch KindOf(err) {
  case KindNotFound:
    return http.StatusNotFound
  case KindValidation:
    return http.StatusUnprocessableEntity
  case KindQuotaExceeded:
    return http.StatusTooManyRequests
  case KindUpstream:
    return http.StatusServiceUnavailable
  default:
    return http.StatusInternalServerError
  }
}
