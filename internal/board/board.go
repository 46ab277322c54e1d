package board

import (
	"errors"
	"fmt"
	"strings"
)

// ColumnID identifies one of the fixed board columns.
type ColumnID string

const (
	ColumnTodo       ColumnID = "todo"
	ColumnInProgress ColumnID = "inProgress"
	ColumnDone       ColumnID = "done"
)

// Collection is the store collection holding one board document per user, keyed by user id.
const Collection = "boards"

const columnCount = 3

// ErrUnknownColumn indicates a column identifier outside the fixed column set.
var ErrUnknownColumn = errors.New("board: unknown column")

var columnOrder = [columnCount]ColumnID{ColumnTodo, ColumnInProgress, ColumnDone}

var defaultTitles = map[ColumnID]string{
	ColumnTodo:       "To Do",
	ColumnInProgress: "In Progress",
	ColumnDone:       "Done",
}

// ColumnOrder returns the column identifiers in display order.
func ColumnOrder() []ColumnID {
	return append([]ColumnID(nil), columnOrder[:]...)
}

// ParseColumnID validates raw input against the fixed column set.
func ParseColumnID(rawInput string) (ColumnID, error) {
	candidate := ColumnID(strings.TrimSpace(rawInput))
	if _, ok := candidate.index(); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, rawInput)
	}
	return candidate, nil
}

// Title returns the display title of the column.
func (id ColumnID) Title() string {
	return defaultTitles[id]
}

func (id ColumnID) String() string {
	return string(id)
}

func (id ColumnID) index() (int, bool) {
	for position, candidate := range columnOrder {
		if candidate == id {
			return position, true
		}
	}
	return 0, false
}

// ToggleTarget returns the column a task moves to when its done checkbox flips.
func ToggleTarget(from ColumnID) ColumnID {
	if from == ColumnDone {
		return ColumnTodo
	}
	return ColumnDone
}

// AdvanceTarget returns the next column for the advance action. The done column has none.
func AdvanceTarget(from ColumnID) (ColumnID, bool) {
	switch from {
	case ColumnTodo:
		return ColumnInProgress, true
	case ColumnInProgress:
		return ColumnDone, true
	default:
		return "", false
	}
}

// Task is a single card on the board.
type Task struct {
	ID        string
	Content   string
	Completed bool
}

// Column holds an ordered task sequence.
type Column struct {
	ID    ColumnID
	Title string
	Tasks []Task
}

// Board is the per-user task board. The column set is fixed at construction.
type Board struct {
	columns [columnCount]Column
}

// DefaultBoard returns the board with three empty columns.
func DefaultBoard() Board {
	var b Board
	for position, id := range columnOrder {
		b.columns[position] = Column{ID: id, Title: id.Title(), Tasks: []Task{}}
	}
	return b
}

// New builds a board from per-column task sequences. Columns not present start empty.
func New(tasks map[ColumnID][]Task) Board {
	b := DefaultBoard()
	for id, columnTasks := range tasks {
		position, ok := id.index()
		if !ok {
			continue
		}
		b.columns[position].Tasks = append(make([]Task, 0, len(columnTasks)), columnTasks...)
	}
	return b
}

// Column returns the column with the provided identifier.
func (b Board) Column(id ColumnID) (Column, bool) {
	position, ok := id.index()
	if !ok {
		return Column{}, false
	}
	return b.columns[position], true
}

// Tasks returns the task sequence of a column, or nil when the column is unknown.
func (b Board) Tasks(id ColumnID) []Task {
	column, ok := b.Column(id)
	if !ok {
		return nil
	}
	return column.Tasks
}

// Columns returns every column in display order.
func (b Board) Columns() []Column {
	return append([]Column(nil), b.columns[:]...)
}

// TaskCount returns the number of tasks across all columns.
func (b Board) TaskCount() int {
	total := 0
	for _, column := range b.columns {
		total += len(column.Tasks)
	}
	return total
}

// Find locates the first column holding a task with the provided id.
func (b Board) Find(taskID string) (ColumnID, Task, bool) {
	for _, column := range b.columns {
		for _, task := range column.Tasks {
			if task.ID == taskID {
				return column.ID, task, true
			}
		}
	}
	return "", Task{}, false
}
