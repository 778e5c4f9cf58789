package issue

import (
	"errors"
	"fmt"
)

// FetchError is returned when the issue body cannot be read.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to get issue body: HTTP %d: %s", e.StatusCode, e.Message)
}

// APIError is a non-2xx answer to a write.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("issue %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 or 412 answer from the store.
func IsConflict(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 409 || apiErr.StatusCode == 412
	}
	return false
}

// IsNotFound reports whether err is a 404 on either a read or a write.
func IsNotFound(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode == 404
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
