// Package errclass classifies resolver and transport errors into the two
// categories the sync driver cares about: transient (worth retrying within
// the run's retry budget) and permanent (fail the log immediately).
package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Class is the retry category of an error
type Class int

const (
	// ClassPermanent errors are not retried: malformed or missing input,
	// missing required payload, HTTP 4xx, parse failures.
	ClassPermanent Class = iota
	// ClassTransient errors are retried within the run's budget:
	// timeouts, connection failures, request-phase errors, transient 5xx.
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// tagged carries an explicit classification assigned at the call site
type tagged struct {
	class Class
	err   error
}

func (t *tagged) Error() string { return t.err.Error() }
func (t *tagged) Unwrap() error { return t.err }

// Transient tags err as retriable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &tagged{class: ClassTransient, err: err}
}

// Permanent tags err as non-retriable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &tagged{class: ClassPermanent, err: err}
}

// Classify maps any error to its retry class. The function is total: an
// explicit tag wins, network-shaped errors are transient, everything else
// is permanent.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	var t *tagged
	if errors.As(err, &t) {
		return t.class
	}

	// Context expiry on a remote call means the request-phase timed out.
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ClassTransient
	}

	// DNS failures and dial errors surface as *net.OpError / *net.DNSError
	// wrapped in *url.Error by net/http.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Any request-phase error that reached the wire is retriable.
		return ClassTransient
	}

	return ClassPermanent
}

// IsTransient reports whether err classifies as retriable
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

// IsPermanent reports whether err classifies as non-retriable
func IsPermanent(err error) bool {
	return err != nil && Classify(err) == ClassPermanent
}
