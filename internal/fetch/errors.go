package fetch

import (
	"errors"
	"fmt"
)

// FetchError reports that the data source could not produce a layer.
type FetchError struct {
	// Layer is the layer being fetched, or empty for geocoding and boundary lookups.
	Layer string
	// Err is the underlying network, HTTP or decoding failure.
	Err error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "fetch failed"
	}
	if e.Layer == "" {
		return fmt.Sprintf("fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("fetch layer %q: %v", e.Layer, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsFetchError reports whether err is or wraps a FetchError.
func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.Status, e.Body)
}
