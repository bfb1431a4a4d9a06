package logger

import "sync"

var (
	defaultBackend = NewBackend()
	registry       sync.Map // subsystem tag -> *Logger
)

// RegisterSubSystem returns the shared Logger for tag, creating it
// against the package's default backend on first use. Every package in
// this module that logs (channel, p2p, addressbook, p2p/session) calls
// this once at init time and keeps the *Logger as a package variable,
// the same way the teacher's per-package log.go files do.
func RegisterSubSystem(tag string) *Logger {
	if existing, ok := registry.Load(tag); ok {
		return existing.(*Logger)
	}
	l := defaultBackend.Logger(tag)
	actual, _ := registry.LoadOrStore(tag, l)
	return actual.(*Logger)
}

// DefaultBackend returns the process-wide backend that RegisterSubSystem
// attaches loggers to. Callers (typically cmd/p2pnode) add writers to it
// and call Run before any logging is expected to reach a destination;
// until Run is called, log lines are simply dropped once the channel
// buffer fills.
func DefaultBackend() *Backend {
	return defaultBackend
}
