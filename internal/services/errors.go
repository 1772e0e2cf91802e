package services

import (
	"buildtrack-backend/internal/access"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/checklist"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies a failed chat operation for REST and realtime callers.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindTaskLinkFailed  ErrorKind = "task_link_failed"
	KindInternal        ErrorKind = "internal"
)

// Error is a classified service failure. Err, when set, is the cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// TaskLinkError reports a confirmation whose message was persisted and
// broadcast while the task update failed. Callers retry the task flip
// through the confirmation toggle instead of resending the message.
type TaskLinkError struct {
	Message *models.Message
	TaskID  uuid.UUID
	Err     error
}

func (e *TaskLinkError) Error() string {
	return fmt.Sprintf("message %s saved but updating task %s failed: %v", e.Message.ID, e.TaskID, e.Err)
}

func (e *TaskLinkError) Unwrap() error { return e.Err }

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func notFoundError(what string, id uuid.UUID) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", what, id)}
}

func internalError(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf classifies any error returned by this package or the layers it
// wraps. Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	var taskErr *TaskLinkError
	var svcErr *Error
	var denied *access.DeniedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &taskErr):
		return KindTaskLinkFailed
	case errors.As(err, &svcErr):
		return svcErr.Kind
	case errors.As(err, &denied):
		return KindForbidden
	case errors.Is(err, auth.ErrInvalidToken):
		return KindUnauthenticated
	case errors.Is(err, store.ErrNotFound), errors.Is(err, checklist.ErrTaskNotFound):
		return KindNotFound
	}
	return KindInternal
}

// RequiredRoles returns the roles named by an authorization denial, if any.
func RequiredRoles(err error) []models.Role {
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		return denied.Required
	}
	return nil
}

// PublicMessage is the error text safe to show a caller. Internal causes
// are not exposed.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return "internal server error"
	}
	return err.Error()
}
