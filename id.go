package bind

import (
	"fmt"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
)

var fallbackID atomic.Uint64

// newID returns a random identity for an observable.
func newID() string {
	u, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("value-%d", fallbackID.Add(1))
	}
	return u.String()
}
