package pkg

import (
	"os"
	"unsafe"

	"github.com/google/uuid"
)

// BytesToString converts bytes slice to a string without extra allocation
func BytesToString(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

// NewID returns a new client-side record id. Ids are always generated locally,
// before any network call, so that a replayed create stays idempotent.
func NewID() string {
	return uuid.NewString()
}

// PathExists returns whether the given file or directory exists
func PathExists(path string, isDir bool) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if (isDir && stat.IsDir()) || (!isDir && !stat.IsDir()) {
		return true, nil
	}
	return false, err
}
