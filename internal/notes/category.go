package notes

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the closed set of note categories.
type Category string

const (
	CategoryCatatan Category = "catatan"
	CategoryAkun    Category = "akun"
	CategoryLink    Category = "link"
	CategoryMustBuy Category = "must-buy"
	CategoryOther   Category = "other"

	// DefaultCategory replaces a missing or unknown category on stored notes.
	DefaultCategory = CategoryOther
	// FormCategory is preselected when a note is composed without choosing a category.
	FormCategory = CategoryCatatan
)

// ErrUnknownCategory indicates a category outside the closed set.
var ErrUnknownCategory = errors.New("notes: unknown category")

// CategoryInfo carries display metadata for a category.
type CategoryInfo struct {
	ID    Category `json:"id"`
	Label string   `json:"label"`
	Icon  string   `json:"icon"`
	Color string   `json:"color"`
}

var categories = []CategoryInfo{
	{ID: CategoryCatatan, Label: "Catatan", Icon: "📝", Color: "#4CAF50"},
	{ID: CategoryAkun, Label: "Akun", Icon: "👤", Color: "#2196F3"},
	{ID: CategoryLink, Label: "Link", Icon: "🔗", Color: "#9C27B0"},
	{ID: CategoryMustBuy, Label: "Must-buy", Icon: "🛒", Color: "#F44336"},
	{ID: CategoryOther, Label: "Other", Icon: "📌", Color: "#FF9800"},
}

// Categories returns display metadata for every category in display order.
func Categories() []CategoryInfo {
	return append([]CategoryInfo(nil), categories...)
}

// ParseCategory validates raw input against the closed category set.
func ParseCategory(rawInput string) (Category, error) {
	candidate := Category(strings.TrimSpace(rawInput))
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, rawInput)
	}
	return candidate, nil
}

// Valid reports whether the category belongs to the closed set.
func (c Category) Valid() bool {
	for _, info := range categories {
		if info.ID == c {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}
