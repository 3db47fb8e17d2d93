// Package errors defines the coded error taxonomy shared by the bot fleet.
// Every error unwraps to its cause so callers can use errors.Is and errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown    = "UNKNOWN"
	CodeConfig     = "CONFIG"
	CodeConnection = "CONNECTION"
	CodeDispatch   = "DISPATCH"
	CodeDatabase   = "DATABASE"
)

// ErrNoInstances is returned when no (token, assistant) pair is configured.
var ErrNoInstances = NewConfigError("no bot instances configured, check TELEGRAM_TOKEN_BOT / ASSISTANT_ID_BOT", nil)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't carry one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// ConfigError reports missing or invalid configuration. It is never fatal to
// a running instance; the fleet simply does not launch.
type ConfigError struct {
	base Error
}

func (e *ConfigError) Error() string {
	return e.base.Error()
}

func (e *ConfigError) Code() string {
	return e.base.Code()
}

func (e *ConfigError) Unwrap() error {
	return e.base.Unwrap()
}

func NewConfigError(message string, cause error) error {
	return &ConfigError{
		base: Error{
			code:    CodeConfig,
			message: message,
			err:     cause,
		},
	}
}

// ConnectionError reports that an instance could not establish or keep its
// platform connection. Instance is the position of the instance in the
// configured list.
type ConnectionError struct {
	base     Error
	Instance int
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("instance %d: %s", e.Instance, e.base.Error())
}

func (e *ConnectionError) Code() string {
	return e.base.Code()
}

func (e *ConnectionError) Unwrap() error {
	return e.base.Unwrap()
}

func NewConnectionError(instance int, message string, cause error) error {
	return &ConnectionError{
		base: Error{
			code:    CodeConnection,
			message: message,
			err:     cause,
		},
		Instance: instance,
	}
}

// DispatchError reports a failed or timed out assistant call. It is
// recovered by the instance that made the call.
type DispatchError struct {
	base        Error
	AssistantID string
}

func (e *DispatchError) Error() string {
	return e.base.Error()
}

func (e *DispatchError) Code() string {
	return e.base.Code()
}

func (e *DispatchError) Unwrap() error {
	return e.base.Unwrap()
}

func NewDispatchError(assistantID, message string, cause error) error {
	return &DispatchError{
		base: Error{
			code:    CodeDispatch,
			message: message,
			err:     cause,
		},
		AssistantID: assistantID,
	}
}

type DatabaseError struct {
	base Error
}

func (e *DatabaseError) Error() string {
	return e.base.Error()
}

func (e *DatabaseError) Code() string {
	return e.base.Code()
}

func (e *DatabaseError) Unwrap() error {
	return e.base.Unwrap()
}

func NewDatabaseError(message string, cause error) error {
	return &DatabaseError{
		base: Error{
			code:    CodeDatabase,
			message: message,
			err:     cause,
		},
	}
}

// IsConfig reports whether err carries a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsConnection reports whether err carries a ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsDispatch reports whether err carries a DispatchError.
func IsDispatch(err error) bool {
	var target *DispatchError
	return errors.As(err, &target)
}
