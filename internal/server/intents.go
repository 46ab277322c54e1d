package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
	"github.com/gin-gonic/gin"
)

// Intent types accepted over REST and the websocket.
const (
	IntentAddTask     = "add_task"
	IntentMoveTask    = "move_task"
	IntentToggleTask  = "toggle_task"
	IntentAdvanceTask = "advance_task"
	IntentDeleteTask  = "delete_task"
	IntentAddNote     = "add_note"
	IntentDeleteNote  = "delete_note"
	IntentSetFilter   = "set_filter"
)

var errUnknownIntent = errors.New("unknown intent")

// intentMessage is the union of every intent's fields. Unused fields are ignored.
type intentMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	NoteID    string `json:"noteId,omitempty"`
	Content   string `json:"content,omitempty"`
	Category  string `json:"category,omitempty"`
	Column    string `json:"column,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

type intentResult struct {
	Applied bool   `json:"applied"`
	TaskID  string `json:"taskId,omitempty"`
}

type intentResponse struct {
	intentResult
	Views dashboard.Views `json:"views"`
}

func applyIntent(ctx context.Context, session *dashboard.Session, intent intentMessage) (intentResult, error) {
	switch intent.Type {
	case IntentAddTask:
		task, added, err := session.AddTask(ctx, intent.Content)
		return intentResult{Applied: added, TaskID: task.ID}, err
	case IntentMoveTask:
		from, err := board.ParseColumnID(intent.From)
		if err != nil {
			return intentResult{}, err
		}
		to, err := board.ParseColumnID(intent.To)
		if err != nil {
			return intentResult{}, err
		}
		moved, err := session.MoveTask(ctx, intent.TaskID, from, to)
		return intentResult{Applied: moved}, err
	case IntentToggleTask, IntentAdvanceTask:
		column, err := board.ParseColumnID(intent.Column)
		if err != nil {
			return intentResult{}, err
		}
		var moved bool
		if intent.Type == IntentToggleTask {
			moved, err = session.ToggleTask(ctx, intent.TaskID, column)
		} else {
			moved, err = session.AdvanceTask(ctx, intent.TaskID, column)
		}
		return intentResult{Applied: moved}, err
	case IntentDeleteTask:
		column, err := board.ParseColumnID(intent.Column)
		if err != nil {
			return intentResult{}, err
		}
		if err := session.DeleteTask(ctx, column, intent.TaskID); err != nil {
			return intentResult{}, err
		}
		return intentResult{Applied: true}, nil
	case IntentAddNote:
		category := notes.FormCategory
		if strings.TrimSpace(intent.Category) != "" {
			parsed, err := notes.ParseCategory(intent.Category)
			if err != nil {
				return intentResult{}, err
			}
			category = parsed
		}
		added, err := session.AddNote(ctx, intent.Content, category)
		return intentResult{Applied: added}, err
	case IntentDeleteNote:
		noteID, err := notes.NewNoteID(intent.NoteID)
		if err != nil {
			return intentResult{}, err
		}
		if err := session.DeleteNote(ctx, noteID); err != nil {
			return intentResult{}, err
		}
		return intentResult{Applied: true}, nil
	case IntentSetFilter:
		var filter *notes.Category
		if strings.TrimSpace(intent.Category) != "" {
			category, err := notes.ParseCategory(intent.Category)
			if err != nil {
				return intentResult{}, err
			}
			filter = &category
		}
		if err := session.SetCategoryFilter(ctx, filter); err != nil {
			return intentResult{}, err
		}
		return intentResult{Applied: true}, nil
	default:
		return intentResult{}, fmt.Errorf("%w: %q", errUnknownIntent, intent.Type)
	}
}

// submitIntent applies the intent to the caller's session and answers 202 with the views as
// they stand after the optimistic update.
func (h *httpHandler) submitIntent(c *gin.Context, intent intentMessage) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	result, err := applyIntent(c.Request.Context(), session, intent)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, intentResponse{intentResult: result, Views: session.Views()})
}

// bindIntent decodes the JSON body into an intent of the given type.
func (h *httpHandler) bindIntent(c *gin.Context, intentType string) (intentMessage, bool) {
	var intent intentMessage
	if err := c.ShouldBindJSON(&intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": "intent.invalid_body"})
		return intentMessage{}, false
	}
	intent.Type = intentType
	return intent, true
}

func (h *httpHandler) handleBoard(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	views := session.Views()
	c.JSON(http.StatusOK, gin.H{"loading": views.Loading, "board": views.Board})
}

func (h *httpHandler) handleNotes(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	views := session.Views()
	c.JSON(http.StatusOK, gin.H{"loading": views.Loading, "notes": views.Notes})
}

func (h *httpHandler) handleAddTask(c *gin.Context) {
	if intent, ok := h.bindIntent(c, IntentAddTask); ok {
		h.submitIntent(c, intent)
	}
}

func (h *httpHandler) handleMoveTask(c *gin.Context) {
	if intent, ok := h.bindIntent(c, IntentMoveTask); ok {
		intent.TaskID = c.Param("id")
		h.submitIntent(c, intent)
	}
}

func (h *httpHandler) handleToggleTask(c *gin.Context) {
	if intent, ok := h.bindIntent(c, IntentToggleTask); ok {
		intent.TaskID = c.Param("id")
		h.submitIntent(c, intent)
	}
}

func (h *httpHandler) handleAdvanceTask(c *gin.Context) {
	if intent, ok := h.bindIntent(c, IntentAdvanceTask); ok {
		intent.TaskID = c.Param("id")
		h.submitIntent(c, intent)
	}
}

func (h *httpHandler) handleDeleteTask(c *gin.Context) {
	h.submitIntent(c, intentMessage{
		Type:   IntentDeleteTask,
		TaskID: c.Param("id"),
		Column: c.Param("column"),
	})
}

func (h *httpHandler) handleAddNote(c *gin.Context) {
	if intent, ok := h.bindIntent(c, IntentAddNote); ok {
		h.submitIntent(c, intent)
	}
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	h.submitIntent(c, intentMessage{Type: IntentDeleteNote, NoteID: c.Param("id")})
}

func (h *httpHandler) handleSetFilter(c *gin.Context) {
	if intent, ok := h.bindIntent(c, IntentSetFilter); ok {
		h.submitIntent(c, intent)
	}
}
