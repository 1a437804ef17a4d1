package errs

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the underlying go-errors value of each taxonomy type.
const (
	TextCodeNotFound         = "ENTITY_NOT_FOUND"
	TextCodeUnknownEntity    = "UNKNOWN_ENTITY"
	TextCodeCompilation      = "QUERY_COMPILATION"
	TextCodeTransactionState = "TRANSACTION_STATE"
	TextCodeStoreConnection  = "STORE_CONNECTION"
)

// NotFoundError reports a lookup miss for an entity key. Session.Find never
// returns it; lazy references and repositories do.
type NotFoundError struct {
	EntityType string
	ID         any
	err        *goerrors.Error
}

// NotFound builds a NotFoundError for the given entity type and id.
func NotFound(entityType string, id any) *NotFoundError {
	return &NotFoundError{
		EntityType: entityType,
		ID:         id,
		err: goerrors.New(fmt.Sprintf("%s %v not found", entityType, id), goerrors.CategoryNotFound).
			WithTextCode(TextCodeNotFound).
			WithMetadata(map[string]any{"entity_type": entityType, "id": id}),
	}
}

func (e *NotFoundError) Error() string { return e.err.Error() }
func (e *NotFoundError) Unwrap() error { return e.err }

// UnknownEntityError is returned when an entity type or Go model was never registered.
type UnknownEntityError struct {
	EntityType string
	err        *goerrors.Error
}

// UnknownEntity builds an UnknownEntityError.
func UnknownEntity(entityType string) *UnknownEntityError {
	return &UnknownEntityError{
		EntityType: entityType,
		err: goerrors.New(fmt.Sprintf("entity type %q is not registered", entityType), goerrors.CategoryBadInput).
			WithTextCode(TextCodeUnknownEntity).
			WithMetadata(map[string]any{"entity_type": entityType}),
	}
}

func (e *UnknownEntityError) Error() string { return e.err.Error() }
func (e *UnknownEntityError) Unwrap() error { return e.err }

// CompilationError reports a query that cannot be turned into SQL, typically
// an unknown alias or field reference.
type CompilationError struct {
	Path   string
	Reason string
	err    *goerrors.Error
}

// Compilation builds a CompilationError. cause may be nil.
func Compilation(path, reason string, cause error) *CompilationError {
	msg := reason
	if path != "" {
		msg = fmt.Sprintf("%s: %s", path, reason)
	}
	e := goerrors.New(msg, goerrors.CategoryValidation).WithTextCode(TextCodeCompilation)
	if path != "" {
		e = e.WithMetadata(map[string]any{"path": path})
	}
	e.Source = cause
	return &CompilationError{Path: path, Reason: reason, err: e}
}

func (e *CompilationError) Error() string { return e.err.Error() }
func (e *CompilationError) Unwrap() error { return e.err }

// TransactionStateError reports invalid begin/commit/rollback sequencing.
type TransactionStateError struct {
	Op  string
	err *goerrors.Error
}

// TransactionState builds a TransactionStateError for op.
func TransactionState(op, reason string) *TransactionStateError {
	return &TransactionStateError{
		Op: op,
		err: goerrors.New(fmt.Sprintf("%s: %s", op, reason), goerrors.CategoryConflict).
			WithTextCode(TextCodeTransactionState).
			WithMetadata(map[string]any{"op": op}),
	}
}

func (e *TransactionStateError) Error() string { return e.err.Error() }
func (e *TransactionStateError) Unwrap() error { return e.err }

// StoreConnectionError wraps a transport or authentication failure. It is
// never retried by this module.
type StoreConnectionError struct {
	Cause error
	err   *goerrors.Error
}

// StoreConnection wraps cause. It returns nil when cause is nil.
func StoreConnection(message string, cause error) *StoreConnectionError {
	if cause == nil {
		return nil
	}
	e := goerrors.New(message, goerrors.CategoryExternal).WithTextCode(TextCodeStoreConnection)
	e.Source = cause
	return &StoreConnectionError{Cause: cause, err: e}
}

func (e *StoreConnectionError) Error() string { return e.err.Error() }
func (e *StoreConnectionError) Unwrap() error { return e.err }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsUnknownEntity(err error) bool {
	var target *UnknownEntityError
	return errors.As(err, &target)
}

func IsCompilation(err error) bool {
	var target *CompilationError
	return errors.As(err, &target)
}

func IsTransactionState(err error) bool {
	var target *TransactionStateError
	return errors.As(err, &target)
}

func IsStoreConnection(err error) bool {
	var target *StoreConnectionError
	return errors.As(err, &target)
}
