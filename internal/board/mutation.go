package board

import "fmt"

// Mutations never alias the task slices of the input board, so the caller may keep
// handing the previous value to readers while the new one is persisted.

// AddTask appends the task to the end of the todo column.
func AddTask(b Board, task Task) Board {
	next := b.clone()
	position, _ := ColumnTodo.index()
	next.columns[position].Tasks = append(next.columns[position].Tasks, task)
	return next
}

// MoveTask removes the first task with taskID from the source column and appends it to the
// target column. It reports false, without error, when the task is not in the source column.
func MoveTask(b Board, taskID string, from, to ColumnID) (Board, bool, error) {
	fromPosition, ok := from.index()
	if !ok {
		return b, false, fmt.Errorf("%w: %q", ErrUnknownColumn, from)
	}
	toPosition, ok := to.index()
	if !ok {
		return b, false, fmt.Errorf("%w: %q", ErrUnknownColumn, to)
	}

	source := b.columns[fromPosition].Tasks
	found := -1
	for index, task := range source {
		if task.ID == taskID {
			found = index
			break
		}
	}
	if found < 0 {
		return b, false, nil
	}

	next := b.clone()
	moved := source[found]
	remaining := make([]Task, 0, len(source)-1)
	remaining = append(remaining, source[:found]...)
	remaining = append(remaining, source[found+1:]...)
	next.columns[fromPosition].Tasks = remaining
	next.columns[toPosition].Tasks = append(next.columns[toPosition].Tasks, moved)
	return next, true, nil
}

// DeleteTask removes every task with taskID from the column.
func DeleteTask(b Board, column ColumnID, taskID string) (Board, error) {
	position, ok := column.index()
	if !ok {
		return b, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	next := b.clone()
	current := b.columns[position].Tasks
	kept := make([]Task, 0, len(current))
	for _, task := range current {
		if task.ID != taskID {
			kept = append(kept, task)
		}
	}
	next.columns[position].Tasks = kept
	return next, nil
}

func (b Board) clone() Board {
	next := b
	for position := range next.columns {
		if next.columns[position].ID == "" {
			next.columns[position] = Column{ID: columnOrder[position], Title: columnOrder[position].Title()}
		}
		next.columns[position].Tasks = append(make([]Task, 0, len(b.columns[position].Tasks)+1), b.columns[position].Tasks...)
	}
	return next
}
