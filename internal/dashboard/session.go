package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
	"go.uber.org/zap"
)

// SessionConfig wires one user's session. Writer and Views may be shared across sessions;
// when nil the session gets private ones.
type SessionConfig struct {
	Store      docstore.Store
	UserID     string
	Writer     *Writer
	Views      *ViewDispatcher
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Session owns the synchronized state of one signed-in user. A single loop goroutine runs
// every intent and every snapshot delivery, so the dispatcher and reconciler never overlap
// while their relative order stays whatever arrival order produced.
type Session struct {
	userID     notes.UserID
	state      *SyncedState
	dispatcher *Dispatcher
	reconciler *Reconciler
	writer     *Writer
	views      *ViewDispatcher
	clock      func() time.Time
	logger     *zap.Logger

	intents   chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	stopBoard func()
	stopNotes func()
	closeOnce sync.Once
}

// NewSession subscribes to the user's board document and notes query and starts the loop.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opSessionNew, "missing_store", errMissingStore)
	}
	userID, err := notes.NewUserID(cfg.UserID)
	if err != nil {
		return nil, newServiceError(opSessionNew, "missing_user_id", fmt.Errorf("%w: %w", errMissingUserID, err))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	writer := cfg.Writer
	if writer == nil {
		writer = NewWriter(WriterConfig{Logger: logger})
	}
	views := cfg.Views
	if views == nil {
		views = NewViewDispatcher(0)
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewTaskIDProvider()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:  userID,
		writer:  writer,
		views:   views,
		clock:   clock,
		logger:  logger,
		intents: make(chan func()),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.state = NewSyncedState(s.publish)
	s.dispatcher = &Dispatcher{
		ctx:    ctx,
		state:  s.state,
		store:  cfg.Store,
		writer: writer,
		userID: userID,
		ids:    ids,
		logger: logger,
	}
	s.reconciler = &Reconciler{
		ctx:    ctx,
		state:  s.state,
		store:  cfg.Store,
		writer: writer,
		userID: userID,
		clock:  clock,
		logger: logger,
	}

	boardStream, stopBoard := cfg.Store.WatchDocument(ctx, docstore.Key{Collection: board.Collection, ID: userID.String()})
	notesStream, stopNotes := cfg.Store.WatchQuery(ctx, docstore.Query{
		Collection: notes.Collection,
		OwnerField: notes.FieldUserID,
		OwnerID:    userID.String(),
		OrderField: notes.FieldCreatedAt,
		Descending: true,
	})
	s.stopBoard = stopBoard
	s.stopNotes = stopNotes

	go s.run(boardStream, notesStream)
	return s, nil
}

func (s *Session) run(boardStream <-chan docstore.DocumentEvent, notesStream <-chan docstore.QueryEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case intent := <-s.intents:
			intent()
		case event, ok := <-boardStream:
			if !ok {
				boardStream = nil
				continue
			}
			s.guard(opBoardSnapshot, func() { s.reconciler.ApplyBoardSnapshot(event) })
		case event, ok := <-notesStream:
			if !ok {
				notesStream = nil
				continue
			}
			s.guard(opNotesSnapshot, func() { s.reconciler.ApplyNotesSnapshot(event) })
		}
	}
}

func (s *Session) guard(operation string, call func()) {
	if err := runGuarded(func() error { call(); return nil }); err != nil {
		logError(s.logger, operation, "panic", err, zap.String("user_id", s.userID.String()))
	}
}

// execute runs intent on the loop and returns once it has been applied.
func (s *Session) execute(ctx context.Context, intent func() error) error {
	var result error
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		result = runGuarded(intent)
	}
	select {
	case s.intents <- task:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return result
}

func (s *Session) publish(views Views) {
	s.views.Publish(ViewUpdate{UserID: s.userID.String(), Views: views, Timestamp: s.clock().UTC()})
}

// UserID returns the owner of the session.
func (s *Session) UserID() string {
	return s.userID.String()
}

// State exposes the cache for reads.
func (s *Session) State() *SyncedState {
	return s.state
}

// Views returns the latest views.
func (s *Session) Views() Views {
	return s.state.Views()
}

// Subscribe streams view updates until ctx ends or the returned func is called.
func (s *Session) Subscribe(ctx context.Context) (<-chan ViewUpdate, func()) {
	return s.views.Subscribe(ctx, s.userID.String())
}

// Done is closed once the loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// AddTask appends a task to the todo column. Blank content is a no-op reported as false.
func (s *Session) AddTask(ctx context.Context, content string) (board.Task, bool, error) {
	var (
		task  board.Task
		added bool
	)
	err := s.execute(ctx, func() error {
		var err error
		task, added, err = s.dispatcher.AddTask(content)
		return err
	})
	return task, added, err
}

// MoveTask moves a task between columns.
func (s *Session) MoveTask(ctx context.Context, taskID string, from, to board.ColumnID) (bool, error) {
	var moved bool
	err := s.execute(ctx, func() error {
		var err error
		moved, err = s.dispatcher.MoveTask(taskID, from, to)
		return err
	})
	return moved, err
}

// ToggleTask flips the done checkbox: done moves back to todo, any other column moves to done.
func (s *Session) ToggleTask(ctx context.Context, taskID string, column board.ColumnID) (bool, error) {
	if _, err := board.ParseColumnID(column.String()); err != nil {
		return false, err
	}
	return s.MoveTask(ctx, taskID, column, board.ToggleTarget(column))
}

// AdvanceTask moves a task one column forward. Tasks in done stay put.
func (s *Session) AdvanceTask(ctx context.Context, taskID string, column board.ColumnID) (bool, error) {
	if _, err := board.ParseColumnID(column.String()); err != nil {
		return false, err
	}
	target, ok := board.AdvanceTarget(column)
	if !ok {
		return false, nil
	}
	return s.MoveTask(ctx, taskID, column, target)
}

// DeleteTask removes every task with taskID from the column.
func (s *Session) DeleteTask(ctx context.Context, column board.ColumnID, taskID string) error {
	return s.execute(ctx, func() error {
		return s.dispatcher.DeleteTask(column, taskID)
	})
}

// AddNote writes a new note. It appears once the notes subscription delivers it.
func (s *Session) AddNote(ctx context.Context, content string, category notes.Category) (bool, error) {
	var added bool
	err := s.execute(ctx, func() error {
		var err error
		added, err = s.dispatcher.AddNote(content, category)
		return err
	})
	return added, err
}

// DeleteNote deletes a note. It disappears once the notes subscription delivers the removal.
func (s *Session) DeleteNote(ctx context.Context, noteID notes.NoteID) error {
	return s.execute(ctx, func() error {
		s.dispatcher.DeleteNote(noteID)
		return nil
	})
}

// SetCategoryFilter selects the notes category shown; nil shows every note.
func (s *Session) SetCategoryFilter(ctx context.Context, category *notes.Category) error {
	if category != nil && !category.Valid() {
		return notes.ErrUnknownCategory
	}
	return s.execute(ctx, func() error {
		s.state.SetCategoryFilter(category)
		return nil
	})
}

// Close stops snapshot delivery and the loop. Writes already started keep running.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.stopBoard()
		s.stopNotes()
		s.cancel()
		<-s.done
	})
}
