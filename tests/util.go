package testutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/trezcool/ulearn/core"
)

// Logger is a core.Logger that records every message.
type Logger struct {
	mu    sync.Mutex
	lines []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := level + ": " + msg
	for _, arg := range args {
		line += fmt.Sprintf(" | %v", arg)
	}
	l.lines = append(l.lines, line)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.record("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.record("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.record("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.record("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.record("FATAL", msg, args) }

// Lines returns a copy of the recorded lines.
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether any recorded line contains `s`.
func (l *Logger) Contains(s string) bool {
	for _, line := range l.Lines() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// Notification is one call to a Notifier.
type Notification struct {
	Subject string
	Body    string
}

// Notifier is a core.Notifier that records notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
}

var _ core.Notifier = (*Notifier)(nil)

func (n *Notifier) Notify(subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Subject: subject, Body: body})
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
