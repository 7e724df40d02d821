package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ReasonError carries a machine-readable reason code and whether a retry may help.
type ReasonError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *ReasonError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ReasonError) Unwrap() error {
	return e.Err
}

func Transient(reason string, err error) error {
	return &ReasonError{Reason: reason, Transient: true, Err: err}
}

func Permanent(reason string, err error) error {
	return &ReasonError{Reason: reason, Err: err}
}

// ReasonCode satisfies ReasonCoder.
func (e *ReasonError) ReasonCode() string {
	return e.Reason
}

// ReasonCoder is implemented by client errors that carry their own reason code.
type ReasonCoder interface {
	ReasonCode() string
}

// StatusCoder is implemented by HTTP client errors that expose the response status.
type StatusCoder interface {
	StatusCode() int
}

// IsTransient reports network failures, timeouts and 5xx/429 responses. An explicit
// ReasonError decides for itself.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Transient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 429 || code >= 500
	}
	// http.Client wraps transport failures in *url.Error, which is itself a
	// net.Error, so the concrete causes are checked first.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// ReasonOf extracts the reason code, falling back to a generic class.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var rc ReasonCoder
	if errors.As(err, &rc) && rc.ReasonCode() != "" {
		return rc.ReasonCode()
	}
	if IsTransient(err) {
		return "transient_error"
	}
	return "operation_failed"
}
