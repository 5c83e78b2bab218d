package api

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

// ErrNotFound matches any StatusError carrying a 404, via errors.Is.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx answer from the backend, body included so the
// CLI can surface the server's own explanation.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// IsNotFound reports whether err is a backend 404 (unknown job id, empty
// symbol cache, no runs recorded yet).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNetworkError reports whether err is a transport-level failure rather
// than a backend answer.
func IsNetworkError(err error) bool {
	var uerr *url.Error
	return errors.As(err, &uerr)
}
