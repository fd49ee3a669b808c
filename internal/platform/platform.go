// Package platform isolates the OS-specific probes the engine needs:
// free-space queries before a job starts and drive-letter enumeration on
// systems that mount volumes as lettered drives.
package platform

import "errors"

// ErrUnsupported is returned by probes with no implementation on this OS.
var ErrUnsupported = errors.New("not supported on this platform")
