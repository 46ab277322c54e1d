package notes

import (
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
)

// Field names of the persisted note document.
const (
	FieldUserID    = "userId"
	FieldContent   = "content"
	FieldCategory  = "category"
	FieldCreatedAt = "createdAt"
)

// NewDocument renders a note document. createdAt is left for the store to assign at commit.
func NewDocument(userID UserID, content string, category Category) docstore.Document {
	return docstore.Document{
		FieldUserID:    userID.String(),
		FieldContent:   content,
		FieldCategory:  category.String(),
		FieldCreatedAt: docstore.ServerTimestamp,
	}
}

// FromDocument rebuilds a note from a stored document. A missing or unknown category becomes
// DefaultCategory and a missing or unreadable createdAt becomes now.
func FromDocument(id NoteID, document docstore.Document, now time.Time) Note {
	content, _ := document[FieldContent].(string)
	owner, _ := document[FieldUserID].(string)

	category := DefaultCategory
	if raw, ok := document[FieldCategory].(string); ok {
		if parsed, err := ParseCategory(raw); err == nil {
			category = parsed
		}
	}

	createdAt, ok := docstore.TimestampValue(document[FieldCreatedAt])
	if !ok {
		createdAt = now
	}

	return Note{
		ID:        id,
		UserID:    UserID(owner),
		Content:   content,
		Category:  category,
		CreatedAt: createdAt,
	}
}
