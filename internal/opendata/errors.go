package opendata

import (
	"errors"
	"fmt"
)

// FetchError reports a transport-level failure: the request could not be
// sent, timed out, returned a non-2xx status, or its body could not be read.
// It is fatal to the whole fetch; no partial result accompanies it.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SchemaError reports a response that arrived intact but does not have the
// datastore_search envelope shape, or whose pagination cannot complete.
type SchemaError struct {
	URL    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %s", e.URL, e.Reason)
}

// ErrorKind classifies err for metrics and event payloads.
func ErrorKind(err error) string {
	var fe *FetchError
	var se *SchemaError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &se):
		return "schema"
	default:
		return "other"
	}
}
