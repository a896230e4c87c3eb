// Package applog provides the logging fan-out shared by both connection
// kinds and the admin API: every record goes to stdout, a SQLite history
// table, and any live subscriber channels (the admin dashboard's log tail),
// generalizing the teacher's bot.Logger from a per-account log to a
// per-connection-kind one.
package applog

import (
	"fmt"
	"sync"
	"time"

	"chatconn/internal/model"
	"chatconn/internal/store"
)

// Logger fans a log record out to stdout, the store, and subscribers. Tag +
// level + message, not structured fields — matches the density the teacher
// repo uses everywhere.
type Logger struct {
	kind        string
	store       *store.Store
	subscribers map[chan *model.LogEntry]struct{}
	mu          sync.RWMutex
}

func New(kind string, s *store.Store) *Logger {
	return &Logger{
		kind:        kind,
		store:       s,
		subscribers: make(map[chan *model.LogEntry]struct{}),
	}
}

func (l *Logger) Infof(tag, format string, args ...interface{}) {
	l.emit("info", tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(tag, format string, args ...interface{}) {
	l.emit("warn", tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(tag, format string, args ...interface{}) {
	l.emit("error", tag, fmt.Sprintf(format, args...))
}

func (l *Logger) emit(level, tag, msg string) {
	entry := &model.LogEntry{
		Kind:      l.kind,
		Tag:       tag,
		Message:   msg,
		Level:     level,
		CreatedAt: time.Now(),
	}

	if l.store != nil {
		_ = l.store.AddLog(entry)
	}

	l.mu.RLock()
	for ch := range l.subscribers {
		select {
		case ch <- entry:
		default: // drop if channel full
		}
	}
	l.mu.RUnlock()

	fmt.Printf("[%s] [%s] [%s] %s\n", time.Now().Format("15:04:05"), l.kind, tag, msg)
}

// stdLogWriter adapts a Logger into an io.Writer so it can back a
// standard-library *log.Logger for packages (like chatws) that take one.
type stdLogWriter struct {
	l *Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	for len(msg) > 0 && (msg[len(msg)-1] == '\n' || msg[len(msg)-1] == '\r') {
		msg = msg[:len(msg)-1]
	}
	w.l.Infof("chatws", "%s", msg)
	return len(p), nil
}

// Writer returns an io.Writer suitable for log.New, routing every line
// through this Logger's usual fan-out.
func (l *Logger) Writer() stdLogWriter { return stdLogWriter{l: l} }

// Subscribe returns a channel that receives log entries. Call Unsubscribe to stop.
func (l *Logger) Subscribe() chan *model.LogEntry {
	ch := make(chan *model.LogEntry, 100)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

func (l *Logger) Unsubscribe(ch chan *model.LogEntry) {
	l.mu.Lock()
	delete(l.subscribers, ch)
	l.mu.Unlock()
	close(ch)
}
