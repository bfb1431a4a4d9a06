package logger

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Logger writes tagged, leveled lines for one subsystem to a shared
// Backend's write channel.
type Logger struct {
	level     Level
	tag       string
	writeChan chan<- logEntry
}

// SetLevel adjusts the minimum level this logger writes at.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32((*uint32)(&l.level), uint32(level))
}

// Level returns the logger's current minimum level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32((*uint32)(&l.level)))
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] %s %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level, l.tag, msg)
	select {
	case l.writeChan <- logEntry{level: level, line: []byte(line)}:
	default:
		// The backend's queue is full; drop rather than block the caller.
		// A slow disk must never stall the read pump or coordinator.
	}
}

func (l *Logger) Tracef(format string, args ...interface{})    { l.write(LevelTrace, format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})    { l.write(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.write(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})     { l.write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.write(LevelError, format, args...) }
func (l *Logger) Criticalf(format string, args ...interface{}) { l.write(LevelCritical, format, args...) }
