package upstream

import "fmt"

// StatusError reports a non-2xx response from the upstream API. Any such
// response aborts the sync pass; there is no retry within a pass.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream API error (%d): %s", e.StatusCode, e.Body)
}
