package engine

import (
	"context"
	"log"
	"sort"

	"github.com/quillworks/voxpilot/internal/conversation"
	"github.com/quillworks/voxpilot/internal/voice"
)

// Scan is the mutation-observer entry point: it diffs the current thread
// snapshot against stored state and, at most once per cycle, answers the
// first qualifying unseen inbound message. Scans for a busy or inactive
// conversation are dropped, not queued; the next page mutation re-triggers.
func (e *Engine) Scan(ctx context.Context, conversationID, markup string) {
	st := e.store.Get(conversationID)
	if !st.IsActive || st.Processing {
		return
	}

	messages := sortedMessages(markup)
	delta := len(messages) - st.LastProcessedCount
	if delta <= 0 {
		return
	}

	if !e.store.TryBeginProcessing(conversationID) {
		return
	}
	defer e.store.EndProcessing(conversationID)

	// The pre-lock snapshot may be stale if another cycle completed in
	// between; re-read the watermarks now that the lock is held.
	st = e.store.Get(conversationID)
	delta = len(messages) - st.LastProcessedCount
	if delta <= 0 {
		return
	}

	log.Printf("[engine] %s: %d unseen of %d messages", conversationID, delta, len(messages))

	unseen := messages[st.LastProcessedCount:]
	for _, msg := range unseen {
		if msg.IsSelf() {
			continue
		}
		if msg.Timestamp <= st.LastProcessedTimestamp {
			continue
		}

		// Fold the trigger into context before generating, so the model
		// sees it even if the reply attempt fails.
		e.store.Update(conversationID, func(s *conversation.State) {
			s.Context = append(s.Context, conversation.ContextEntry{
				Text:      msg.Text,
				Author:    msg.Author,
				Timestamp: msg.Timestamp,
			})
		})

		// One inbound message per scan cycle; interleaved unseen messages
		// are covered by the count watermark below and never answered
		// retroactively.
		e.respond(ctx, conversationID, msg)
		break
	}

	e.store.Update(conversationID, func(s *conversation.State) {
		s.LastProcessedCount = len(messages)
	})
}

// InitializeContext seeds a conversation from the messages already on the
// page when activation is switched on, then answers the most recent unseen
// inbound message if there is one.
func (e *Engine) InitializeContext(ctx context.Context, conversationID, markup string) {
	messages := sortedMessages(markup)

	entries := make([]conversation.ContextEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, conversation.ContextEntry{
			Text:      msg.Text,
			Author:    msg.Author,
			Timestamp: msg.Timestamp,
		})
	}

	st := e.store.Update(conversationID, func(s *conversation.State) {
		s.Context = entries
		s.LastProcessedCount = len(entries)
	})
	log.Printf("[engine] %s: initialized context with %d messages", conversationID, len(entries))

	if !st.IsActive || len(messages) == 0 || st.Processing {
		return
	}

	latest := messages[len(messages)-1]
	if latest.IsSelf() {
		return
	}

	if !e.store.TryBeginProcessing(conversationID) {
		return
	}
	defer e.store.EndProcessing(conversationID)

	if latest.Timestamp <= e.store.Get(conversationID).LastProcessedTimestamp {
		return
	}

	e.respond(ctx, conversationID, latest)
}

func sortedMessages(markup string) []voice.Message {
	data := voice.Normalize(markup)
	messages := data.Messages
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages
}
