package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors.
var (
	ErrNotFound           = notFoundError("not found")
	ErrValidation         = validationError("invalid data")
	ErrOutOfStock         = outOfStockError("out of stock")
	ErrReplicaUnavailable = unavailableError("replica unavailable")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

type validationError string

func (e validationError) Error() string { return string(e) }

// Is lets every validation message match ErrValidation.
func (e validationError) Is(target error) bool {
	_, ok := target.(validationError)
	return ok
}

type outOfStockError string

func (e outOfStockError) Error() string { return string(e) }

type unavailableError string

func (e unavailableError) Error() string { return string(e) }

// ReplicaError reports a replica that could not be reached or failed mid-call.
// It matches ErrReplicaUnavailable.
type ReplicaError struct {
	Store string
	Addr  string
	Err   error
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("%s replica %s unavailable: %v", e.Store, e.Addr, e.Err)
}

func (e *ReplicaError) Unwrap() error { return e.Err }

func (e *ReplicaError) Is(target error) bool { return target == ErrReplicaUnavailable }

// PartialWriteError is returned when a fan-out write stopped after some
// replicas had already been changed. Applied changes are not undone.
type PartialWriteError struct {
	Op      string
	Applied []string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s partially applied on [%s]: %v", e.Op, strings.Join(e.Applied, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// IsPartialWrite reports whether err carries a PartialWriteError.
func IsPartialWrite(err error) bool {
	var pw *PartialWriteError
	return errors.As(err, &pw)
}
