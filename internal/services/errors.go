package services

import "errors"

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrAccountExists     = errors.New("account already exists")
	ErrDuplicatePurchase = errors.New("duplicate purchase")
)

// ValidationError reports a client input problem on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
