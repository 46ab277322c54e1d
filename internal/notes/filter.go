package notes

// Filter returns the notes in the category, keeping their relative order. A nil category
// returns every note.
func Filter(all []Note, category *Category) []Note {
	if category == nil {
		return append([]Note(nil), all...)
	}
	matched := make([]Note, 0, len(all))
	for _, note := range all {
		if note.Category == *category {
			matched = append(matched, note)
		}
	}
	return matched
}
