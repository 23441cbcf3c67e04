// Package indexer – error types
//
// Every failure of a remote call surfaces as *IndexError or *QueryError. Both
// match ErrUpstream through errors.Is and also unwrap to the underlying cause
// (a context deadline, a dial error, ErrContractViolation). Message carries
// the text the indexer itself reported when it sent one; UpstreamMessage
// extracts it for the HTTP layer.
package indexer

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream is matched by every IndexError and QueryError so callers can
	// classify failures without caring which call produced them.
	ErrUpstream = errors.New("indexing service failure")

	// ErrContractViolation marks a 2xx response that lacks the fields the
	// service promised to return.
	ErrContractViolation = errors.New("service violated its response contract")
)

// IndexError is returned by Client.Index.
//
// Status is the upstream HTTP status, or 0 when the request never produced a
// response (dial error, timeout). Message is the upstream's own message when
// it sent one, otherwise the transport error text.
type IndexError struct {
	Status  int
	Message string
	Err     error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index document: %s", e.Message)
}

// Unwrap exposes both ErrUpstream and the underlying cause.
func (e *IndexError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// QueryError is returned by Client.Query. Fields mirror IndexError.
type QueryError struct {
	Status  int
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query document: %s", e.Message)
}

// Unwrap exposes both ErrUpstream and the underlying cause.
func (e *QueryError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// UpstreamMessage returns the message carried by an IndexError or QueryError
// anywhere in err's chain, and false for any other error.
func UpstreamMessage(err error) (string, bool) {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Message, true
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Message, true
	}
	return "", false
}
