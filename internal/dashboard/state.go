package dashboard

import (
	"sync"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
)

// SyncedState is the local cache of one user's board and notes. Replacement is whole-aggregate
// only, and every replacement recomputes the views and reports them to the observer.
//
// Writers are expected to be serialized by the owning session loop; the lock only lets
// presentation goroutines read concurrently.
type SyncedState struct {
	mu       sync.RWMutex
	board    board.Board
	notes    []notes.Note
	filter   *notes.Category
	loading  bool
	views    Views
	onChange func(Views)
}

// NewSyncedState returns a state holding the default board, no notes, and the loading flag set.
// onChange may be nil.
func NewSyncedState(onChange func(Views)) *SyncedState {
	state := &SyncedState{
		board:    board.DefaultBoard(),
		notes:    []notes.Note{},
		loading:  true,
		onChange: onChange,
	}
	state.views = state.project()
	return state
}

// Board returns the cached board.
func (s *SyncedState) Board() board.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board
}

// ReplaceBoard overwrites the cached board and clears the loading flag.
func (s *SyncedState) ReplaceBoard(next board.Board) {
	s.update(func() {
		s.board = next
		s.loading = false
	})
}

// Notes returns a copy of the cached notes in store order.
func (s *SyncedState) Notes() []notes.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]notes.Note(nil), s.notes...)
}

// ReplaceNotes overwrites the cached notes.
func (s *SyncedState) ReplaceNotes(next []notes.Note) {
	copied := append(make([]notes.Note, 0, len(next)), next...)
	s.update(func() {
		s.notes = copied
	})
}

// CategoryFilter returns the selected category, or nil when unfiltered.
func (s *SyncedState) CategoryFilter() *notes.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filter == nil {
		return nil
	}
	selected := *s.filter
	return &selected
}

// SetCategoryFilter selects a category; nil clears the filter.
func (s *SyncedState) SetCategoryFilter(category *notes.Category) {
	var selected *notes.Category
	if category != nil {
		value := *category
		selected = &value
	}
	s.update(func() {
		s.filter = selected
	})
}

// Loading reports whether no board snapshot has been reconciled yet.
func (s *SyncedState) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Views returns the views computed at the last replacement.
func (s *SyncedState) Views() Views {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views
}

func (s *SyncedState) update(apply func()) {
	s.mu.Lock()
	apply()
	s.views = s.project()
	views := s.views
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(views)
	}
}

func (s *SyncedState) project() Views {
	return Views{
		Loading: s.loading,
		Board:   ProjectBoard(s.board),
		Notes:   ProjectNotes(s.notes, s.filter),
	}
}
