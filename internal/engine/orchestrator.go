package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/quillworks/voxpilot/internal/conversation"
	"github.com/quillworks/voxpilot/internal/llm"
	"github.com/quillworks/voxpilot/internal/persona"
	"github.com/quillworks/voxpilot/internal/voice"
)

// respond runs one generation cycle for trigger: probe, generate, clean,
// inject. On a confirmed post it appends the reply to context and advances
// the timestamp watermark to the trigger's timestamp; on any failure the
// timestamp watermark is left alone so the message stays visibly
// unanswered. Callers hold the single-flight lock.
func (e *Engine) respond(ctx context.Context, conversationID string, trigger voice.Message) {
	st := e.store.Get(conversationID)
	p := persona.ByID(st.Persona)

	if err := e.gen.Ping(ctx); err != nil {
		log.Printf("[engine] %s: backend probe failed: %v", conversationID, err)
		e.notifier.Error("Cannot reach the generation backend. Make sure Ollama is running.")
		return
	}

	prompt := buildPrompt(p, st.Context, trigger)

	raw, err := e.gen.Generate(ctx, st.Model, prompt)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrUnreachable):
			e.notifier.Error("Lost connection to the generation backend.")
		case errors.Is(err, llm.ErrEmptyResponse):
			e.notifier.Warning("The model returned an empty response. Message left unanswered.")
		default:
			e.notifier.Error(fmt.Sprintf("AI response failed: %v", err))
		}
		log.Printf("[engine] %s: generate failed: %v", conversationID, err)
		return
	}

	reply := strings.TrimSpace(e.cleaner.Clean(raw, p.Name))
	if reply == "" {
		log.Printf("[engine] %s: nothing usable after cleaning", conversationID)
		e.notifier.Warning("The model response contained no usable reply text.")
		return
	}

	if !e.poster.Post(ctx, reply) {
		e.notifier.Error("Could not post the reply: message input or send control not found.")
		return
	}

	now := e.now().UnixMilli()
	e.store.Update(conversationID, func(s *conversation.State) {
		s.Context = append(s.Context, conversation.ContextEntry{
			Text:      reply,
			Author:    voice.SelfAuthor,
			Timestamp: now,
		})
		s.LastProcessedCount = len(s.Context)
	})
	e.store.AdvanceWatermark(conversationID, trigger.Timestamp)
	log.Printf("[engine] %s: replied as %s (%d chars)", conversationID, p.Name, len(reply))
}

// buildPrompt serializes the persona instruction block, the running context
// and the triggering message into one generation prompt.
func buildPrompt(p persona.Persona, history []conversation.ContextEntry, trigger voice.Message) string {
	var sb strings.Builder
	sb.WriteString(p.Prompt)
	sb.WriteString("\n\nConversation so far:\n")
	for _, entry := range history {
		sb.WriteString(entry.Author)
		sb.WriteString(": ")
		sb.WriteString(entry.Text)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nNew message: %q\n\n", trigger.Author+": "+trigger.Text)
	fmt.Fprintf(&sb, "Respond as %s would - just the text message content, no name prefix or labels. Keep it natural and brief like a real text message.", p.Name)
	return sb.String()
}
