package regioncache

import (
	"errors"

	"github.com/unkn0wn-root/regioncache/store"
)

// ErrNotFound is returned by Get when a key is absent from a region.
// Expected during normal operation, never logged.
var ErrNotFound = store.ErrNotFound

// TimeoutError and ConnError surface from the store facade when it is
// unreachable; with Options.RaiseOnTimeout unset they are swallowed on
// read paths and converted to misses.
type (
	TimeoutError = store.TimeoutError
	ConnError    = store.ConnError
)

// IsNotFound reports whether err is a genuine miss.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool { return store.Unavailable(err) }
