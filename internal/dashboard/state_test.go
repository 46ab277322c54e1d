package dashboard

import (
	"testing"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
)

func TestSyncedStateNotifiesOnEveryReplacement(t *testing.T) {
	var observed []Views
	state := NewSyncedState(func(views Views) { observed = append(observed, views) })

	if !state.Views().Loading {
		t.Fatalf("expected initial views to be loading")
	}

	state.ReplaceNotes([]notes.Note{{ID: "n1", Content: "x", Category: notes.CategoryLink}})
	state.ReplaceBoard(board.New(map[board.ColumnID][]board.Task{board.ColumnTodo: {{ID: "t1"}}}))
	link := notes.CategoryLink
	state.SetCategoryFilter(&link)

	if len(observed) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(observed))
	}
	if !observed[0].Loading {
		t.Fatalf("notes alone must not clear loading")
	}
	if observed[1].Loading || observed[1].Board.Columns[0].Label != "To Do (1)" {
		t.Fatalf("unexpected board views %+v", observed[1].Board)
	}
	if observed[2].Notes.Filter != notes.CategoryLink {
		t.Fatalf("expected filter in views, got %q", observed[2].Notes.Filter)
	}
	if state.Views().Board.TotalTasks != 1 {
		t.Fatalf("expected cached views to match the last replacement")
	}
}

func TestSyncedStateDoesNotShareSlicesWithCallers(t *testing.T) {
	state := NewSyncedState(nil)
	input := []notes.Note{{ID: "n1", Content: "x", Category: notes.CategoryOther}}
	state.ReplaceNotes(input)
	input[0].Content = "mutated"

	returned := state.Notes()
	if returned[0].Content != "x" {
		t.Fatalf("cache aliased caller slice")
	}
	returned[0].Content = "mutated again"
	if state.Notes()[0].Content != "x" {
		t.Fatalf("cache exposed its slice")
	}

	category := notes.CategoryAkun
	state.SetCategoryFilter(&category)
	category = notes.CategoryLink
	if got := state.CategoryFilter(); got == nil || *got != notes.CategoryAkun {
		t.Fatalf("filter aliased caller pointer, got %v", got)
	}
	state.SetCategoryFilter(nil)
	if state.CategoryFilter() != nil {
		t.Fatalf("expected filter to clear")
	}
}
