package feed

import (
	"errors"
	"fmt"
)

// FetchError is a network or transport failure retrieving feed content.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the upstream content no longer has the expected shape.
type ParseError struct {
	Feed   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Feed, e.Reason)
}

// IdentityError means a single record cannot yield a feed id.
type IdentityError struct {
	Feed   string
	Reason string
	Fields map[string]string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("derive id for %s: %s", e.Feed, e.Reason)
}

// DeliveryError is a per-event dispatch failure.
type DeliveryError struct {
	IVORN string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.IVORN, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// StoreError is a failure of the event store or hash cache.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsFetchError checks if an error is a fetch error.
func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsIdentityError checks if an error is an identity error.
func IsIdentityError(err error) bool {
	var target *IdentityError
	return errors.As(err, &target)
}

// IsDeliveryError checks if an error is a delivery error.
func IsDeliveryError(err error) bool {
	var target *DeliveryError
	return errors.As(err, &target)
}

// IsStoreError checks if an error is a store error.
func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}
