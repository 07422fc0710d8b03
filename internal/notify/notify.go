// Package notify surfaces user-visible notifications. Every engine failure
// is reported through here with a severity class; nothing in the engine is
// allowed to fail silently or fatally.
package notify

import (
	"log"
	"sync"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Sink receives classified notifications. Sinks must not block.
type Sink interface {
	Notify(level Level, message string)
}

// Notifier fans notifications out to all registered sinks.
type Notifier struct {
	mu    sync.RWMutex
	sinks []Sink
}

func New(sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks}
}

// Add registers a sink after construction, e.g. once the extension bridge
// has a connected client.
func (n *Notifier) Add(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

func (n *Notifier) Notify(level Level, message string) {
	n.mu.RLock()
	sinks := make([]Sink, len(n.sinks))
	copy(sinks, n.sinks)
	n.mu.RUnlock()

	for _, s := range sinks {
		s.Notify(level, message)
	}
}

func (n *Notifier) Info(message string)    { n.Notify(LevelInfo, message) }
func (n *Notifier) Warning(message string) { n.Notify(LevelWarning, message) }
func (n *Notifier) Error(message string)   { n.Notify(LevelError, message) }

// LogSink writes notifications to the process log.
type LogSink struct{}

func (LogSink) Notify(level Level, message string) {
	log.Printf("[notify] %s: %s", level, message)
}
