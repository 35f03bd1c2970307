package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared across the vault, token manager, provider clients and
// services. Callers branch on them with errors.Is / errors.As.
var (
	ErrNotConnected            = errors.New("integration not connected")
	ErrIntegrationNotConnected = errors.New("integration is not in connected state")
	ErrNoRefreshToken          = errors.New("no refresh token stored, reconnect the integration")
	ErrReconnectRequired       = errors.New("refresh token rejected by provider, reconnect the integration")
	ErrRefreshFailed           = errors.New("token refresh failed")
	ErrClientError             = errors.New("provider rejected request")
	ErrExhaustedRetries        = errors.New("request failed after exhausting retries")
	ErrDecryptionFailed        = errors.New("decryption failed")
	ErrEmptyInput              = errors.New("empty input")
	ErrAlreadySent             = errors.New("campaign already sent")
	ErrNotFound                = errors.New("not found")
	ErrConsentRevoked          = errors.New("contact consent revoked")
)

// IntegrationStatusError reports an Integration that exists but is not
// connected. It matches both ErrIntegrationNotConnected and ErrNotConnected.
type IntegrationStatusError struct {
	Status IntegrationStatus
}

func (e *IntegrationStatusError) Error() string {
	return fmt.Sprintf("integration is %s", e.Status)
}

func (e *IntegrationStatusError) Is(target error) bool {
	return target == ErrIntegrationNotConnected || target == ErrNotConnected
}

// ClientError is a non-retryable 4xx response from a provider.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

func (e *ClientError) Is(target error) bool {
	return target == ErrClientError
}

// NotFoundError names the entity kind that was missing. It matches ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
