package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from the rider backend. Anything else
// that goes wrong on the wire (timeout, unreachable host, bad JSON) surfaces
// as a plain wrapped error and is treated as a network failure by callers.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Code, e.Message)
}

// IsConflict reports whether the backend rejected a transition because the
// order's state already changed server-side.
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusConflict
}

// IsValidation reports whether the backend rejected the request payload.
func IsValidation(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusBadRequest || se.Code == http.StatusUnprocessableEntity
}

func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
