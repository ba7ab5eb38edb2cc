package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound represents an unknown user, group, feed or edge target
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeDuplicate represents a create on an existing unique key
	ErrorTypeDuplicate ErrorType = "duplicate"
	// ErrorTypeNotAuthorized represents an actor without moderator privilege
	ErrorTypeNotAuthorized ErrorType = "not_authorized"
	// ErrorTypeNotOwner represents an actor that is not the group owner
	ErrorTypeNotOwner ErrorType = "not_owner"
	// ErrorTypeInvariant represents a mutation that would break a group invariant
	ErrorTypeInvariant ErrorType = "invariant_violation"
	// ErrorTypeCascade represents a fan-out that failed after the source of truth committed
	ErrorTypeCascade ErrorType = "cascade_failure"
	// ErrorTypeAlreadyFollowing represents following a group twice
	ErrorTypeAlreadyFollowing ErrorType = "already_following"
	// ErrorTypeNotFollowing represents unfollowing a group that is not followed
	ErrorTypeNotFollowing ErrorType = "not_following"
	// ErrorTypeInvalidArgument represents a request rejected at the boundary
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"

	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeFeed represents feed store errors
	ErrorTypeFeed ErrorType = "feed"
	// ErrorTypeDirectory represents user directory errors
	ErrorTypeDirectory ErrorType = "directory"
	// ErrorTypeBroker represents event broker errors
	ErrorTypeBroker ErrorType = "broker"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// PublicMessage is the message safe to show to a client. It never includes
// the wrapped store error.
func (e *BaseError) PublicMessage() string {
	return e.Message
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Lookup errors

// ErrNotFound is returned when a user, group, feed or edge target does not exist
type ErrNotFound struct {
	*BaseError
	Resource string
	Key      string
}

func NewNotFound(resource, key string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", resource, key), nil),
		Resource:  resource,
		Key:       key,
	}
}

// ErrDuplicate is returned when creating a record whose key already exists
type ErrDuplicate struct {
	*BaseError
	Resource string
	Key      string
}

func NewDuplicate(resource, key string) *ErrDuplicate {
	return &ErrDuplicate{
		BaseError: NewBaseError(ErrorTypeDuplicate, fmt.Sprintf("%s already exists: %s", resource, key), nil),
		Resource:  resource,
		Key:       key,
	}
}

// Authorization errors

// ErrNotAuthorized is returned when an actor is neither owner nor moderator
type ErrNotAuthorized struct {
	*BaseError
	Group string
	Actor string
}

func NewNotAuthorized(group, actor string) *ErrNotAuthorized {
	return &ErrNotAuthorized{
		BaseError: NewBaseError(ErrorTypeNotAuthorized, fmt.Sprintf("not a moderator of group %s", group), nil),
		Group:     group,
		Actor:     actor,
	}
}

// ErrNotOwner is returned when an owner-only operation is attempted by someone else
type ErrNotOwner struct {
	*BaseError
	Group string
	Actor string
}

func NewNotOwner(group, actor string) *ErrNotOwner {
	return &ErrNotOwner{
		BaseError: NewBaseError(ErrorTypeNotOwner, fmt.Sprintf("not the owner of group %s", group), nil),
		Group:     group,
		Actor:     actor,
	}
}

// Group and feed state errors

// ErrInvariantViolation is returned when a mutation would break a group invariant
type ErrInvariantViolation struct {
	*BaseError
	Invariant string
}

func NewInvariantViolation(invariant string) *ErrInvariantViolation {
	return &ErrInvariantViolation{
		BaseError: NewBaseError(ErrorTypeInvariant, invariant, nil),
		Invariant: invariant,
	}
}

// ErrAlreadyFollowing is returned when following a group that is already followed
type ErrAlreadyFollowing struct {
	*BaseError
	Group string
}

func NewAlreadyFollowing(group string) *ErrAlreadyFollowing {
	return &ErrAlreadyFollowing{
		BaseError: NewBaseError(ErrorTypeAlreadyFollowing, fmt.Sprintf("already following group %s", group), nil),
		Group:     group,
	}
}

// ErrNotFollowing is returned when unfollowing a group that is not followed
type ErrNotFollowing struct {
	*BaseError
	Group string
}

func NewNotFollowing(group string) *ErrNotFollowing {
	return &ErrNotFollowing{
		BaseError: NewBaseError(ErrorTypeNotFollowing, fmt.Sprintf("not following group %s", group), nil),
		Group:     group,
	}
}

// ErrInvalidArgument is returned for requests rejected at the boundary
type ErrInvalidArgument struct {
	*BaseError
	Field string
}

func NewInvalidArgument(field, reason string) *ErrInvalidArgument {
	return &ErrInvalidArgument{
		BaseError: NewBaseError(ErrorTypeInvalidArgument, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
	}
}

// Cascade errors

// ErrCascadeFailure is returned when the source-of-truth write committed but
// at least one follower feed was not updated. Retrying the same call is safe.
type ErrCascadeFailure struct {
	*BaseError
	Group     string
	Operation string
	Failed    []string
}

func NewCascadeFailure(group, operation string, failed []string, err error) *ErrCascadeFailure {
	return &ErrCascadeFailure{
		BaseError: NewBaseError(ErrorTypeCascade,
			fmt.Sprintf("%s on group %s did not reach %d feed(s); retry the operation", operation, group, len(failed)), err),
		Group:     group,
		Operation: operation,
		Failed:    failed,
	}
}

// Infrastructure errors

// ErrStoreFailed is returned when a backing store call fails
type ErrStoreFailed struct {
	*BaseError
	Operation string
}

func NewStoreFailed(errType ErrorType, operation string, err error) *ErrStoreFailed {
	return &ErrStoreFailed{
		BaseError: NewBaseError(errType, fmt.Sprintf("%s failed", operation), err),
		Operation: operation,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type kinded interface {
	Kind() ErrorType
}

// KindOf returns the category of the first categorized error in the chain
func KindOf(err error) (ErrorType, bool) {
	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// PublicMessage returns a client-safe message for err
func PublicMessage(err error) string {
	var pub interface{ PublicMessage() string }
	if stderrors.As(err, &pub) {
		if kind, ok := KindOf(err); ok && isInfrastructure(kind) {
			return "internal error"
		}
		return pub.PublicMessage()
	}
	return "internal error"
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeCascade) {
		return true
	}
	// Store and broker failures are transient from the caller's view
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return isInfrastructure(kind)
}

// AsCascadeFailure extracts the cascade failure from err, if any
func AsCascadeFailure(err error) (*ErrCascadeFailure, bool) {
	var cf *ErrCascadeFailure
	if stderrors.As(err, &cf) {
		return cf, true
	}
	return nil, false
}

func isInfrastructure(kind ErrorType) bool {
	switch kind {
	case ErrorTypeGraph, ErrorTypeFeed, ErrorTypeDirectory, ErrorTypeBroker, ErrorTypeConfig:
		return true
	}
	return false
}
