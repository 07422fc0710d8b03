// Package engine is the conversation-state engine: it detects unseen inbound
// messages in normalized thread snapshots and drives persona-styled reply
// generation under a per-conversation single-flight lock.
package engine

import (
	"context"
	"time"

	"github.com/quillworks/voxpilot/internal/conversation"
	"github.com/quillworks/voxpilot/internal/llm"
	"github.com/quillworks/voxpilot/internal/notify"
)

// Poster delivers a finished reply to the page. The injector implements it,
// adding typing cadence in front of the external DOM collaborator.
type Poster interface {
	Post(ctx context.Context, text string) bool
}

type Engine struct {
	store    *conversation.Store
	gen      llm.Generator
	poster   Poster
	notifier *notify.Notifier
	cleaner  *Cleaner

	now func() time.Time // injectable for tests
}

func New(store *conversation.Store, gen llm.Generator, poster Poster, notifier *notify.Notifier) *Engine {
	return &Engine{
		store:    store,
		gen:      gen,
		poster:   poster,
		notifier: notifier,
		cleaner:  NewCleaner(),
		now:      time.Now,
	}
}
