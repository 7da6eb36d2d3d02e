package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure
type Kind string

const (
	KindNetwork     Kind = "network"
	KindStatus      Kind = "status"
	KindContentType Kind = "content_type"
	KindRobots      Kind = "robots"
	KindParse       Kind = "parse"
)

var (
	// ErrDisallowed is wrapped by robots failures
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrUnexpectedStatus is wrapped by non-2xx responses
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNotHTML is wrapped by responses that are not HTML
	ErrNotHTML = errors.New("not an HTML document")
)

// FetchError reports why one URL could not be fetched or extracted
type FetchError struct {
	URL  string
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
