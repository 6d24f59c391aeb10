package b2

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized is returned when B2 rejects the cached authorization token.
// The client invalidates its session before returning this, so the next call
// re-authorizes from scratch.
var ErrNotAuthorized = errors.New("b2: not authorized")

// Error is a structured error returned by the B2 API. Status, Code, and
// Message mirror the JSON error body B2 sends with every non-2xx response;
// Op identifies which client operation produced it.
type Error struct {
	Op      string `json:"-"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("b2 %s: %d %s: %s", e.Op, e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a B2 error for a missing file or bucket.
func IsNotFound(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Status == 404 || be.Code == "not_found" || be.Code == "file_not_present"
	}
	return false
}
