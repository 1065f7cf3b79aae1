package platforms

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/maheshrc27/postengine/internal/models"
)

// ConfigError means adapter credentials or required settings are missing.
// It is surfaced immediately and never retried.
type ConfigError struct {
	Platform models.Platform
	Missing  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing configuration: %s", e.Platform, e.Missing)
}

// AuthError means the platform rejected the token (or a refresh failed).
// A 403 triggers the coordinator's single refresh-and-retry cycle.
type AuthError struct {
	Platform   models.Platform
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authorization rejected (status %d), reconnect the account: %s", e.Platform, e.StatusCode, e.Body)
}

// ValidationError fails a platform before any network call is made.
type ValidationError struct {
	Platform models.Platform
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
}

// ProtocolError covers platform responses that violate the publish contract,
// most importantly a reported success carrying no post id.
type ProtocolError struct {
	Platform models.Platform
	Endpoint string
	Body     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol violation from %s: %s", e.Platform, e.Endpoint, e.Body)
}

// TransientError covers timeouts and 5xx responses. The engine does not retry
// these automatically; the post stays failed until a manual retry.
type TransientError struct {
	Platform models.Platform
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Platform, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsAuthRetryable reports whether err is an auth failure the coordinator may
// answer with one refresh-and-retry cycle.
func IsAuthRetryable(err error) bool {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return false
	}
	return authErr.StatusCode == http.StatusForbidden || authErr.StatusCode == http.StatusUnauthorized
}

// statusError classifies a non-2xx platform response.
func statusError(platform models.Platform, statusCode int, body string) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &AuthError{Platform: platform, StatusCode: statusCode, Body: body}
	case statusCode >= 500:
		return &TransientError{Platform: platform, Err: fmt.Errorf("status %d: %s", statusCode, body)}
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", platform, statusCode, body)
	}
}
