package apperr

import (
  "errors"
  "fmt"
  "net/http"
  "testing"

  "github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
  cases := []struct {
    err       error
    status    int
  }{
    {NotFound("no such session"), http.StatusNotFound},
    {Validation("bad vote"), http.StatusUnprocessableEntity},
    {QuotaExceeded("limit hit"), http.StatusTooManyRequests},
    {Upstream(errors.New("boom"), "model backend failed"), http.StatusServiceUnavailable},
    {Persistence(errors.New("boom"), "tx failed"), http.StatusInternalServerError},
    {errors.New("plain"), http.StatusInternalServerError},
    {nil, http.StatusInternalServerError},
  }
  for _, c := range cases {
    assert.Equal(t, c.status, HTTPStatus(c.err), "err=%v", c.err)
  }
}

func TestKindSurvivesWrapping(t *testing.T) {
  inner := NotFound("concept with id %d not found", 7)
  wrapped := fmt.Errorf("loading context: %w", inner)
  assert.True(t, IsNotFound(wrapped))
  assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestErrorMessageIncludesCause(t *testing.T) {
  cause := errors.New("connection refused")
  err := Upstream(cause, "model backend failed")
  assert.Contains(t, err.Error(), "model backend failed")
  assert.Contains(t, err.Error(), "connection refused")
  assert.ErrorIs(t, err, cause)
}
