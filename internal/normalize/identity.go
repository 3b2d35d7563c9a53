package normalize

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// AssignID returns the content-derived identifier shared by every
// occurrence of one event. It changes whenever title or url changes.
func AssignID(title, url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(title+url))
}
