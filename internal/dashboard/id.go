package dashboard

import "github.com/google/uuid"

const taskIDPrefix = "task-"

// IDProvider issues client-side task identifiers. Identifiers are not checked against the
// remote board for collisions.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewTaskIDProvider constructs an IDProvider that issues "task-<uuidv7>" identifiers.
func NewTaskIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return taskIDPrefix + value.String(), nil
}
