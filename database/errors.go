package database

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable marks a missing price, indicator or option chain. Scoring degrades
// on it; API handlers that cannot answer without the data report it to the caller.
var ErrDataUnavailable = errors.New("market data unavailable")

// NotFoundError is returned when a stock, signal, position or alert does not exist
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for resource id
func NewNotFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidParameterError rejects a malformed ticker, date or number before anything
// is stored. Values are never coerced to a default.
type InvalidParameterError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *InvalidParameterError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s: %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewInvalidParameter creates an InvalidParameterError
func NewInvalidParameter(field, reason string) error {
	return &InvalidParameterError{Field: field, Reason: reason}
}

// NewInvalidParameterWithValue creates an InvalidParameterError carrying the rejected value
func NewInvalidParameterWithValue(field, reason string, value interface{}) error {
	return &InvalidParameterError{Field: field, Reason: reason, Value: value}
}

// NewDataUnavailable wraps ErrDataUnavailable with what was missing for ticker
func NewDataUnavailable(ticker, what string) error {
	return fmt.Errorf("%s for %s: %w", what, ticker, ErrDataUnavailable)
}
