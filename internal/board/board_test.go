package board

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestAddTaskAppendsToTodo(t *testing.T) {
	b := DefaultBoard()
	b = AddTask(b, Task{ID: "task-1", Content: "Buy milk"})
	b = AddTask(b, Task{ID: "task-2", Content: "Walk dog"})

	todo := b.Tasks(ColumnTodo)
	assert.Equal(t, len(todo), 2)
	assert.Equal(t, todo[0].ID, "task-1")
	assert.Equal(t, todo[1].ID, "task-2")
	assert.Equal(t, len(b.Tasks(ColumnInProgress)), 0)
	assert.Equal(t, len(b.Tasks(ColumnDone)), 0)
}

func TestAddTaskDoesNotAliasInput(t *testing.T) {
	original := New(map[ColumnID][]Task{ColumnTodo: {{ID: "a", Content: "first"}}})
	next := AddTask(original, Task{ID: "b", Content: "second"})
	next.columns[0].Tasks[0].Content = "mutated"

	assert.Equal(t, original.Tasks(ColumnTodo)[0].Content, "first")
	assert.Equal(t, len(original.Tasks(ColumnTodo)), 1)
}

func TestMoveTaskPreservesCountAndFields(t *testing.T) {
	original := New(map[ColumnID][]Task{
		ColumnTodo:       {{ID: "a", Content: "alpha"}, {ID: "b", Content: "beta"}},
		ColumnInProgress: {{ID: "c", Content: "gamma"}},
	})

	moved, changed, err := MoveTask(original, "a", ColumnTodo, ColumnInProgress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, changed, true)
	assert.Equal(t, moved.TaskCount(), original.TaskCount())

	inProgress := moved.Tasks(ColumnInProgress)
	assert.Equal(t, inProgress[len(inProgress)-1], Task{ID: "a", Content: "alpha"})
	assert.Equal(t, moved.Tasks(ColumnTodo), []Task{{ID: "b", Content: "beta"}})
}

func TestMoveTaskMissingInSourceIsNoOp(t *testing.T) {
	original := New(map[ColumnID][]Task{ColumnDone: {{ID: "a", Content: "alpha"}}})

	next, changed, err := MoveTask(original, "a", ColumnTodo, ColumnInProgress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, changed, false)
	assert.Equal(t, next, original)
}

func TestMoveTaskOnlyMovesFirstMatch(t *testing.T) {
	original := New(map[ColumnID][]Task{
		ColumnTodo: {{ID: "dup", Content: "one"}, {ID: "dup", Content: "two"}},
	})

	next, _, err := MoveTask(original, "dup", ColumnTodo, ColumnDone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, next.Tasks(ColumnTodo), []Task{{ID: "dup", Content: "two"}})
	assert.Equal(t, next.Tasks(ColumnDone), []Task{{ID: "dup", Content: "one"}})
}

func TestMoveTaskRoundTripRestoresBoard(t *testing.T) {
	original := New(map[ColumnID][]Task{ColumnTodo: {{ID: "t1", Content: "Buy milk"}}})

	forward, _, err := MoveTask(original, "t1", ColumnTodo, ColumnDone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, _, err := MoveTask(forward, "t1", ColumnDone, ColumnTodo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, back, original)
}

func TestMoveTaskRejectsUnknownColumn(t *testing.T) {
	_, _, err := MoveTask(DefaultBoard(), "a", ColumnTodo, ColumnID("archive"))
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestDeleteTaskRemovesEveryOccurrenceInColumnOnly(t *testing.T) {
	original := New(map[ColumnID][]Task{
		ColumnTodo: {{ID: "x", Content: "one"}, {ID: "y", Content: "keep"}, {ID: "x", Content: "two"}},
		ColumnDone: {{ID: "x", Content: "elsewhere"}},
	})

	next, err := DeleteTask(original, ColumnTodo, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, next.Tasks(ColumnTodo), []Task{{ID: "y", Content: "keep"}})
	assert.Equal(t, next.Tasks(ColumnDone), []Task{{ID: "x", Content: "elsewhere"}})
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from       ColumnID
		toggle     ColumnID
		advance    ColumnID
		canAdvance bool
	}{
		{from: ColumnTodo, toggle: ColumnDone, advance: ColumnInProgress, canAdvance: true},
		{from: ColumnInProgress, toggle: ColumnDone, advance: ColumnDone, canAdvance: true},
		{from: ColumnDone, toggle: ColumnTodo, canAdvance: false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			assert.Equal(t, ToggleTarget(tt.from), tt.toggle)
			advance, ok := AdvanceTarget(tt.from)
			assert.Equal(t, ok, tt.canAdvance)
			assert.Equal(t, advance, tt.advance)
		})
	}
}

func TestParseColumnID(t *testing.T) {
	id, err := ParseColumnID(" inProgress ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, id, ColumnInProgress)

	if _, err := ParseColumnID("InProgress"); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn for case mismatch, got %v", err)
	}
}
