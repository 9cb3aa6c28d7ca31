package service

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceNotFound is matched by errors returned from Send for unknown or disposed services.
	ErrServiceNotFound = errors.New("service not found")

	// ErrDuplicateService is returned when registering a name that is already in use.
	ErrDuplicateService = errors.New("service name already registered")

	// ErrServiceDisposed is returned when delivering to or registering a disposed service.
	ErrServiceDisposed = errors.New("service is disposed")

	// ErrBusClosed is returned when registering on a closed bus.
	ErrBusClosed = errors.New("bus is closed")

	// ErrTaskTimeout is returned when a background task or an in-flight delivery does not finish within the stop timeout.
	ErrTaskTimeout = errors.New("task did not stop in time")
)

// NotFoundError is returned by Bus.Send when no active service is registered under Name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("service %q not found", e.Name)
}

// Is makes NotFoundError match ErrServiceNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrServiceNotFound
}

// RegisterError hands the rejected name and service back to the caller of Bus.Register.
type RegisterError struct {
	Name    string
	Service *Service
	Err     error
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("failed to register service %q: %v", e.Name, e.Err)
}

// Unwrap returns the reason of the rejection.
func (e *RegisterError) Unwrap() error {
	return e.Err
}

// UnexpectedMessageError is returned by handlers given a message type they do not handle.
type UnexpectedMessageError struct {
	Service string
	Message Message
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("service %q cannot handle message of type %T", e.Service, e.Message)
}
