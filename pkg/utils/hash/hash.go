package hash

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HashString returns a stable hex digest of s, short enough for file and
// directory names.
func HashString(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
