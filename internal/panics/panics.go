// Package panics provides a goroutine wrapper that recovers and logs a
// panic instead of crashing the process. This is the embeddable-library
// analogue of the teacher's util/panics package: a kaspad daemon can
// afford to exit the whole process on an unrecoverable goroutine panic,
// but a networking core linked into someone else's binary must not call
// os.Exit on their behalf.
package panics

import (
	"runtime/debug"

	"github.com/lastcanal/libbitcoin-network/internal/logger"
)

// GoroutineWrapperFunc returns a spawn function that launches its
// argument in a new goroutine, recovering and logging any panic under
// log's tag rather than propagating it.
func GoroutineWrapperFunc(log *logger.Logger) func(name string, f func()) {
	return func(name string, f func()) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Criticalf("panic in %s: %v\n%s", name, r, debug.Stack())
				}
			}()
			f()
		}()
	}
}
