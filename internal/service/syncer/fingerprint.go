package syncer

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a fast non-cryptographic hash of the raw document.
func Fingerprint(doc string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(doc))
}
