package board

// Field names of the persisted board document.
const (
	FieldUserID    = "userId"
	FieldColumns   = "columns"
	fieldID        = "id"
	fieldTitle     = "title"
	fieldTasks     = "tasks"
	fieldContent   = "content"
	fieldCompleted = "completed"
)

// Repairs counts the defects FromDocument patched over while rebuilding a board.
type Repairs struct {
	MissingColumns bool
	MalformedTasks int
	DroppedTasks   int
	DuplicateTasks int
}

// Any reports whether the document needed any repair.
func (r Repairs) Any() bool {
	return r.MissingColumns || r.MalformedTasks > 0 || r.DroppedTasks > 0 || r.DuplicateTasks > 0
}

// ToDocument renders the full board document for the owner.
func ToDocument(userID string, b Board) map[string]any {
	columns := make(map[string]any, columnCount)
	for position, id := range columnOrder {
		column := b.columns[position]
		tasks := make([]any, 0, len(column.Tasks))
		for _, task := range column.Tasks {
			tasks = append(tasks, map[string]any{
				fieldID:        task.ID,
				fieldContent:   task.Content,
				fieldCompleted: task.Completed,
			})
		}
		title := column.Title
		if title == "" {
			title = id.Title()
		}
		columns[id.String()] = map[string]any{
			fieldID:    id.String(),
			fieldTitle: title,
			fieldTasks: tasks,
		}
	}
	return map[string]any{
		FieldUserID:  userID,
		FieldColumns: columns,
	}
}

// FromDocument rebuilds a board from a stored document. Column identity and titles always come
// from the fixed column set; a column whose tasks are missing or not a list becomes empty, task
// entries that are not objects or carry no id are dropped, and a task id seen in an earlier
// column (or earlier in the same column) is dropped so ids stay unique across the board.
func FromDocument(document map[string]any) (Board, Repairs) {
	var repairs Repairs
	b := DefaultBoard()

	columns, ok := asMap(document[FieldColumns])
	if !ok {
		repairs.MissingColumns = true
		return b, repairs
	}

	seen := make(map[string]struct{})
	for position, id := range columnOrder {
		column, _ := asMap(columns[id.String()])
		entries, ok := asList(column[fieldTasks])
		if !ok {
			repairs.MalformedTasks++
			continue
		}
		tasks := make([]Task, 0, len(entries))
		for _, entry := range entries {
			fields, ok := asMap(entry)
			if !ok {
				repairs.DroppedTasks++
				continue
			}
			taskID, _ := fields[fieldID].(string)
			if taskID == "" {
				repairs.DroppedTasks++
				continue
			}
			if _, duplicate := seen[taskID]; duplicate {
				repairs.DuplicateTasks++
				continue
			}
			seen[taskID] = struct{}{}
			content, _ := fields[fieldContent].(string)
			completed, _ := fields[fieldCompleted].(bool)
			tasks = append(tasks, Task{ID: taskID, Content: content, Completed: completed})
		}
		b.columns[position].Tasks = tasks
	}
	return b, repairs
}

func asMap(value any) (map[string]any, bool) {
	typed, ok := value.(map[string]any)
	return typed, ok
}

func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []map[string]any:
		converted := make([]any, 0, len(typed))
		for _, entry := range typed {
			converted = append(converted, entry)
		}
		return converted, true
	default:
		return nil, false
	}
}
