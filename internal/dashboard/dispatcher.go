package dashboard

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
	"go.uber.org/zap"
)

// Dispatcher turns intents into an optimistic cache update plus a detached store write.
// Board intents write the whole resulting board; note intents only write and wait for the
// notes subscription to show the result.
//
// A Dispatcher is not safe for concurrent use; Session calls it from its loop.
type Dispatcher struct {
	ctx    context.Context
	state  *SyncedState
	store  docstore.Store
	writer *Writer
	userID notes.UserID
	ids    IDProvider
	logger *zap.Logger
}

// AddTask appends a new todo task. Content that is empty after trimming is ignored.
func (d *Dispatcher) AddTask(content string) (board.Task, bool, error) {
	if strings.TrimSpace(content) == "" {
		return board.Task{}, false, nil
	}
	id, err := d.ids.NewID()
	if err != nil {
		logError(d.logger, opAddTask, "id_generation_failed", err, zap.String("user_id", d.userID.String()))
		return board.Task{}, false, newServiceError(opAddTask, "id_generation_failed", err)
	}
	task := board.Task{ID: id, Content: content, Completed: false}
	d.commitBoard(opAddTask, board.AddTask(d.state.Board(), task), zap.String("task_id", id))
	return task, true, nil
}

// MoveTask moves the first matching task from one column to the end of another. It reports
// false, with no write, when the task is not in the source column.
func (d *Dispatcher) MoveTask(taskID string, from, to board.ColumnID) (bool, error) {
	next, moved, err := board.MoveTask(d.state.Board(), taskID, from, to)
	if err != nil || !moved {
		return false, err
	}
	d.commitBoard(opMoveTask, next,
		zap.String("task_id", taskID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return true, nil
}

// DeleteTask removes every task with taskID from the column and writes the board.
func (d *Dispatcher) DeleteTask(column board.ColumnID, taskID string) error {
	next, err := board.DeleteTask(d.state.Board(), column, taskID)
	if err != nil {
		return err
	}
	d.commitBoard(opDeleteTask, next, zap.String("task_id", taskID), zap.String("column", column.String()))
	return nil
}

// AddNote writes a new note with a store-assigned creation time. The cache is left alone.
func (d *Dispatcher) AddNote(content string, category notes.Category) (bool, error) {
	if !category.Valid() {
		return false, notes.ErrUnknownCategory
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false, nil
	}
	document := notes.NewDocument(d.userID, trimmed, category)
	d.writer.Go(d.ctx, opAddNote, "", func(ctx context.Context) error {
		_, err := d.store.Create(ctx, notes.Collection, document)
		return err
	}, zap.String("user_id", d.userID.String()), zap.String("category", category.String()))
	return true, nil
}

// DeleteNote deletes the note from the store. The cache is left alone.
func (d *Dispatcher) DeleteNote(noteID notes.NoteID) {
	key := docstore.Key{Collection: notes.Collection, ID: noteID.String()}
	d.writer.Go(d.ctx, opDeleteNote, key.String(), func(ctx context.Context) error {
		return d.store.Delete(ctx, key)
	}, zap.String("user_id", d.userID.String()), zap.String("note_id", noteID.String()))
}

func (d *Dispatcher) commitBoard(operation string, next board.Board, fields ...zap.Field) {
	d.state.ReplaceBoard(next)
	writeBoard(d.ctx, d.writer, d.store, d.userID, next, operation, fields...)
}

func writeBoard(parent context.Context, writer *Writer, store docstore.Store, userID notes.UserID, b board.Board, operation string, fields ...zap.Field) {
	key := docstore.Key{Collection: board.Collection, ID: userID.String()}
	document := board.ToDocument(userID.String(), b)
	fields = append([]zap.Field{zap.String("user_id", userID.String())}, fields...)
	writer.Go(parent, operation, key.String(), func(ctx context.Context) error {
		return store.Write(ctx, key, document)
	}, fields...)
}
