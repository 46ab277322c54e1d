package dashboard

import (
	"errors"
	"fmt"
)

var (
	errMissingStore  = errors.New("document store is required")
	errMissingUserID = errors.New("user identifier is required")

	// ErrSessionClosed is returned by intents submitted after the session stopped.
	ErrSessionClosed = errors.New("dashboard: session closed")
	// ErrManagerClosed is returned when a session is requested from a closed manager.
	ErrManagerClosed = errors.New("dashboard: manager closed")
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opSessionNew    = "dashboard.session.new"
	opManagerNew    = "dashboard.manager.new"
	opAddTask       = "dashboard.add_task"
	opMoveTask      = "dashboard.move_task"
	opDeleteTask    = "dashboard.delete_task"
	opAddNote       = "dashboard.add_note"
	opDeleteNote    = "dashboard.delete_note"
	opBootstrap     = "dashboard.bootstrap_board"
	opBoardSnapshot = "dashboard.board_snapshot"
	opNotesSnapshot = "dashboard.notes_snapshot"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
