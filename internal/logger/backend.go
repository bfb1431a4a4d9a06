package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	defaultThresholdKB = 10 * 1000 // 10 MB per log file by default.
	defaultMaxRolls    = 8
)

type logWriter interface {
	io.WriteCloser
	LogLevel() Level
}

type logWriterWrap struct {
	io.WriteCloser
	logLevel Level
}

func (lw logWriterWrap) LogLevel() Level {
	return lw.logLevel
}

type logEntry struct {
	level Level
	line  []byte
}

// Backend fans log entries from every Logger it creates out to a set of
// registered writers, each gated at its own level. A single background
// goroutine owns the writers so concurrent subsystems never interleave
// partial lines.
type Backend struct {
	writers   []logWriter
	writeChan chan logEntry
	isRunning uint32
	syncClose sync.Mutex
}

// NewBackend creates a backend with no writers attached; call AddLogFile
// or AddLogWriter before Run.
func NewBackend() *Backend {
	return &Backend{writeChan: make(chan logEntry, 100)}
}

// AddLogFile registers a rotating log file at logFile, written to at
// logLevel and above.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Wrap(err, "failed to create log directory")
		}
	}
	r, err := rotator.New(logFile, defaultThresholdKB, false, defaultMaxRolls)
	if err != nil {
		return errors.Wrap(err, "failed to create log rotator")
	}
	b.writers = append(b.writers, logWriterWrap{WriteCloser: r, logLevel: logLevel})
	return nil
}

// AddLogWriter registers an arbitrary io.WriteCloser (e.g. os.Stdout
// wrapped in a no-op closer) at logLevel and above.
func (b *Backend) AddLogWriter(w io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	b.writers = append(b.writers, logWriterWrap{WriteCloser: w, logLevel: logLevel})
	return nil
}

// Run starts the backend's writer goroutine. Safe to call once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger is already running")
	}
	go b.runBlocking()
	return nil
}

func (b *Backend) runBlocking() {
	defer atomic.StoreUint32(&b.isRunning, 0)
	b.syncClose.Lock()
	defer b.syncClose.Unlock()

	for entry := range b.writeChan {
		for _, w := range b.writers {
			if entry.level >= w.LogLevel() {
				_, _ = w.Write(entry.line)
			}
		}
	}
}

// IsRunning reports whether Run has been called and Close has not.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close drains pending entries and closes every writer.
func (b *Backend) Close() {
	close(b.writeChan)
	b.syncClose.Lock()
	defer b.syncClose.Unlock()
	for _, w := range b.writers {
		_ = w.Close()
	}
}

// Logger returns a new per-subsystem logger writing to this backend.
// The subsystem tag is included in every line, mirroring the teacher's
// `CMGR`/`ADDR`-style subsystem tags.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{level: LevelInfo, tag: subsystemTag, writeChan: b.writeChan}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NopCloser wraps w so it can be passed to AddLogWriter.
func NopCloser(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}
