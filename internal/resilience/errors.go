package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Cause names why a model API call failed in a way that may clear on retry.
// Stage adapters retry every failure; the cause feeds retry logging.
type Cause string

const (
	CauseNone        Cause = ""
	CauseRateLimited Cause = "rate_limited"
	CauseOverloaded  Cause = "overloaded"
	CauseTimeout     Cause = "timeout"
	CauseUpstream    Cause = "upstream"
	CauseNetwork     Cause = "network"
)

// StatusOverloaded is the non-standard status Anthropic returns when its
// models are saturated.
const StatusOverloaded = 529

// UpstreamError is an Anthropic or Gemini failure tagged with the HTTP
// status the provider answered with.
type UpstreamError struct {
	Err        error
	StatusCode int
	Cause      Cause
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusCause maps a provider HTTP status to a retry cause. Client errors
// other than 408 and 429 map to CauseNone.
func StatusCause(statusCode int) Cause {
	switch statusCode {
	case http.StatusTooManyRequests:
		return CauseRateLimited
	case StatusOverloaded, http.StatusServiceUnavailable:
		return CauseOverloaded
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CauseTimeout
	case http.StatusInternalServerError, http.StatusBadGateway:
		return CauseUpstream
	default:
		return CauseNone
	}
}

// FromStatus tags err as an UpstreamError when statusCode has a retry cause
// and returns it unchanged otherwise.
func FromStatus(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	if c := StatusCause(statusCode); c != CauseNone {
		return &UpstreamError{Err: err, StatusCode: statusCode, Cause: c}
	}
	return err
}

// Matched against the lowercased message when nothing typed is in the chain.
var messageCauses = []struct {
	substr string
	cause  Cause
}{
	{"overloaded", CauseOverloaded},
	{"rate limit", CauseRateLimited},
	{"resource_exhausted", CauseRateLimited},
	{"i/o timeout", CauseTimeout},
	{"tls handshake timeout", CauseTimeout},
	{"connection reset by peer", CauseNetwork},
	{"broken pipe", CauseNetwork},
	{"server closed idle connection", CauseNetwork},
	{"temporary failure in name resolution", CauseNetwork},
}

// Classify reports why err is expected to clear on retry. It returns
// CauseNone for nil and for failures a retry will not fix.
func Classify(err error) Cause {
	if err == nil {
		return CauseNone
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Cause
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return CauseNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, mc := range messageCauses {
		if strings.Contains(msg, mc.substr) {
			return mc.cause
		}
	}
	return CauseNone
}

// IsTransient reports whether Classify finds a retry cause for err.
func IsTransient(err error) bool {
	return Classify(err) != CauseNone
}
