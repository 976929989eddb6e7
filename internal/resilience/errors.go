package resilience

import (
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (e.g., 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// AuthError marks a 401/403 upstream response. Credential and permission
// failures never resolve on their own, so callers must not retry them.
type AuthError struct {
	Err        error
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps an error as a permanent auth failure.
func NewAuthError(err error, statusCode int) *AuthError {
	return &AuthError{Err: err, StatusCode: statusCode}
}

// IsAuthError reports whether the chain contains an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// RateLimitError marks a 429 response. RetryAfter carries the server's
// Retry-After hint when one was present, zero otherwise.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Err.Error()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError wraps an error as a retryable rate-limit failure.
func NewRateLimitError(err error, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Err: err, RetryAfter: retryAfter}
}

// RetryAfterHint extracts a server-provided Retry-After delay from the error
// chain. Returns zero when no hint is available.
func RetryAfterHint(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// IsCertError reports whether the error chain stems from TLS certificate
// verification, as opposed to a generic connection failure.
func IsCertError(err error) bool {
	if err == nil {
		return false
	}
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		certInvalid      x509.CertificateInvalidError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) || errors.As(err, &certInvalid) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "certificate")
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError or RateLimitError, or if it matches common transient error
// patterns (network timeouts, connection resets, DNS failures). Auth errors
// are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsAuthError(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
