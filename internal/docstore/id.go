package docstore

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDSource issues store-assigned document ids.
type IDSource func() string

// NewULIDSource returns an IDSource issuing monotonic ULIDs, so ids created within the same
// millisecond still sort in creation order.
func NewULIDSource() IDSource {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	}
}
