package dashboard

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
)

// TaskRow is one task as presented inside its column.
type TaskRow struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Completed  bool           `json:"completed"`
	Checked    bool           `json:"checked"`
	ToggleTo   board.ColumnID `json:"toggleTo"`
	CanAdvance bool           `json:"canAdvance"`
	AdvanceTo  board.ColumnID `json:"advanceTo,omitempty"`
}

// ColumnView is a column with its task count folded into the label.
type ColumnView struct {
	ID    board.ColumnID `json:"id"`
	Title string         `json:"title"`
	Label string         `json:"label"`
	Count int            `json:"count"`
	Tasks []TaskRow      `json:"tasks"`
}

// BoardView is the presentation shape of a board.
type BoardView struct {
	Columns    []ColumnView `json:"columns"`
	TotalTasks int          `json:"totalTasks"`
}

// NoteRow is one note with its category display metadata.
type NoteRow struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	Category      notes.Category `json:"category"`
	CategoryLabel string         `json:"categoryLabel"`
	Icon          string         `json:"icon"`
	Color         string         `json:"color"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// NotesView is the filtered notes list. Filter is empty when every category is shown.
type NotesView struct {
	Filter notes.Category `json:"filter,omitempty"`
	Notes  []NoteRow      `json:"notes"`
	Total  int            `json:"total"`
}

// Views bundles everything the presentation renders for one user.
type Views struct {
	Loading bool      `json:"loading"`
	Board   BoardView `json:"board"`
	Notes   NotesView `json:"notes"`
}

// ColumnInfo labels a column for the presentation.
type ColumnInfo struct {
	ID          board.ColumnID `json:"id"`
	Title       string         `json:"title"`
	Color       string         `json:"color"`
	HeaderColor string         `json:"headerColor"`
}

// Metadata is the static labeling data the presentation needs next to the views.
type Metadata struct {
	Columns    []ColumnInfo         `json:"columns"`
	Categories []notes.CategoryInfo `json:"categories"`
}

var columnColors = map[board.ColumnID][2]string{
	board.ColumnTodo:       {"#fff3e0", "#ff9800"},
	board.ColumnInProgress: {"#e8eaf6", "#3f51b5"},
	board.ColumnDone:       {"#e0f2f1", "#009688"},
}

// ProjectBoard derives the board view.
func ProjectBoard(b board.Board) BoardView {
	columns := b.Columns()
	view := BoardView{Columns: make([]ColumnView, 0, len(columns))}
	for _, column := range columns {
		advanceTo, canAdvance := board.AdvanceTarget(column.ID)
		rows := make([]TaskRow, 0, len(column.Tasks))
		for _, task := range column.Tasks {
			rows = append(rows, TaskRow{
				ID:         task.ID,
				Content:    task.Content,
				Completed:  task.Completed,
				Checked:    column.ID == board.ColumnDone,
				ToggleTo:   board.ToggleTarget(column.ID),
				CanAdvance: canAdvance,
				AdvanceTo:  advanceTo,
			})
		}
		view.Columns = append(view.Columns, ColumnView{
			ID:    column.ID,
			Title: column.Title,
			Label: fmt.Sprintf("%s (%d)", column.Title, len(rows)),
			Count: len(rows),
			Tasks: rows,
		})
		view.TotalTasks += len(rows)
	}
	return view
}

// ProjectNotes derives the notes view, keeping the store's order through the filter.
func ProjectNotes(all []notes.Note, filter *notes.Category) NotesView {
	info := categoryIndex()
	filtered := notes.Filter(all, filter)
	view := NotesView{Notes: make([]NoteRow, 0, len(filtered)), Total: len(all)}
	if filter != nil {
		view.Filter = *filter
	}
	for _, note := range filtered {
		meta := info[note.Category]
		view.Notes = append(view.Notes, NoteRow{
			ID:            note.ID.String(),
			Content:       note.Content,
			Category:      note.Category,
			CategoryLabel: meta.Label,
			Icon:          meta.Icon,
			Color:         meta.Color,
			CreatedAt:     note.CreatedAt,
		})
	}
	return view
}

// Meta returns column and category metadata in display order.
func Meta() Metadata {
	order := board.ColumnOrder()
	columns := make([]ColumnInfo, 0, len(order))
	for _, id := range order {
		colors := columnColors[id]
		columns = append(columns, ColumnInfo{ID: id, Title: id.Title(), Color: colors[0], HeaderColor: colors[1]})
	}
	return Metadata{Columns: columns, Categories: notes.Categories()}
}

func categoryIndex() map[notes.Category]notes.CategoryInfo {
	categories := notes.Categories()
	index := make(map[notes.Category]notes.CategoryInfo, len(categories))
	for _, info := range categories {
		index[info.ID] = info
	}
	return index
}
