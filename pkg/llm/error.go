package llm

import "fmt"

// RequestError carries the HTTP status of a failed provider call so callers
// can tell throttling and server trouble apart from hard request errors.
// A zero Status means the call never produced a response.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("provider request failed: %v", e.Err)
	}
	return fmt.Sprintf("provider request failed with status %d: %v", e.Status, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
