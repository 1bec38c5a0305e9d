package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrCredential           = errors.New("credential error")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrIngestion            = errors.New("ingestion error")
	ErrClusterParse         = errors.New("cluster parse error")
)

type CredentialReason string

const (
	CredentialInvalidKey       CredentialReason = "invalid key"
	CredentialInvalidProject   CredentialReason = "invalid project"
	CredentialValidationFailed CredentialReason = "validation failed"
)

// CredentialError reports a rejected transcript-service credential.
type CredentialError struct {
	Reason CredentialReason
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential error: %s", e.Reason)
	}
	return fmt.Sprintf("credential error: %s: %v", e.Reason, e.Err)
}

func (e *CredentialError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCredential}
	}
	return []error{ErrCredential, e.Err}
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
