package dashboard

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
	"go.uber.org/zap"
)

// Reconciler folds remote snapshots into the cache. Every snapshot overwrites the cached
// aggregate outright, including any optimistic change whose write has not landed yet.
type Reconciler struct {
	ctx    context.Context
	state  *SyncedState
	store  docstore.Store
	writer *Writer
	userID notes.UserID
	clock  func() time.Time
	logger *zap.Logger
}

// ApplyBoardSnapshot reconciles one delivery of the user's board document. An absent document
// is bootstrapped with the default board.
func (r *Reconciler) ApplyBoardSnapshot(event docstore.DocumentEvent) {
	if event.Err != nil {
		logError(r.logger, opBoardSnapshot, "delivery_failed", event.Err, zap.String("user_id", r.userID.String()))
		return
	}
	if !event.Snapshot.Exists {
		initial := board.DefaultBoard()
		r.state.ReplaceBoard(initial)
		writeBoard(r.ctx, r.writer, r.store, r.userID, initial, opBootstrap)
		return
	}
	next, repairs := board.FromDocument(event.Snapshot.Data)
	if repairs.Any() {
		r.logger.Warn("repaired malformed board snapshot",
			zap.String("user_id", r.userID.String()),
			zap.Bool("missing_columns", repairs.MissingColumns),
			zap.Int("malformed_tasks", repairs.MalformedTasks),
			zap.Int("dropped_tasks", repairs.DroppedTasks),
			zap.Int("duplicate_tasks", repairs.DuplicateTasks))
	}
	r.state.ReplaceBoard(next)
}

// ApplyNotesSnapshot replaces the cached notes with the delivered query result.
func (r *Reconciler) ApplyNotesSnapshot(event docstore.QueryEvent) {
	if event.Err != nil {
		logError(r.logger, opNotesSnapshot, "delivery_failed", event.Err, zap.String("user_id", r.userID.String()))
		return
	}
	now := r.clock()
	rebuilt := make([]notes.Note, 0, len(event.Documents))
	for _, snapshot := range event.Documents {
		if !snapshot.Exists {
			continue
		}
		rebuilt = append(rebuilt, notes.FromDocument(notes.NoteID(snapshot.Key.ID), snapshot.Data, now))
	}
	r.state.ReplaceNotes(rebuilt)
}
