package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quillworks/voxpilot/internal/bus"
	"github.com/quillworks/voxpilot/internal/config"
	"github.com/quillworks/voxpilot/internal/conversation"
	"github.com/quillworks/voxpilot/internal/llm"
	"github.com/quillworks/voxpilot/internal/notify"
)

type fakeGen struct {
	response string
	calls    int
}

func (f *fakeGen) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.calls++
	return f.response, nil
}

func (f *fakeGen) Ping(ctx context.Context) error { return nil }

type listingGen struct {
	fakeGen
	listed []string
}

func (l *listingGen) ListModels(ctx context.Context) ([]string, error) { return l.listed, nil }

type fakePoster struct {
	posted chan string
}

func (f *fakePoster) Post(ctx context.Context, text string) bool {
	f.posted <- text
	return true
}

type recordSink struct {
	events chan string
}

func (r *recordSink) Notify(level notify.Level, message string) {
	r.events <- string(level) + ": " + message
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Provider.Model = "test-model"
	cfg.Choices.DBPath = filepath.Join(t.TempDir(), "choices.db")
	return cfg
}

func newTestGateway(t *testing.T, gen llm.Generator) (*Gateway, *fakePoster, *recordSink) {
	t.Helper()
	poster := &fakePoster{posted: make(chan string, 10)}
	g, err := NewWithOptions(testConfig(t), Options{
		GeneratorFactory: func(*config.Config) llm.Generator { return gen },
		Poster:           poster,
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() { g.Shutdown() })

	sink := &recordSink{events: make(chan string, 10)}
	g.notifier.Add(sink)
	return g, poster, sink
}

const convURL = "https://voice.google.com/u/0/messages?itemId=t.%2B15551234567"

func threadMarkup(texts ...string) string {
	var sb strings.Builder
	sb.WriteString(`<div><span class="sender">555-1234</span>`)
	for i, text := range texts {
		fmt.Fprintf(&sb, `<div class="container">`+
			`<span class="cdk-visually-hidden">Wednesday, July 10, 2024, 2:4%d PM.</span>`+
			`<div class="message-row"><div class="content">%s</div></div></div>`, i, text)
	}
	sb.WriteString("</div>")
	return sb.String()
}

func TestActivateMarksConversationActive(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeGen{response: "hi"})

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:           bus.EventActivate,
		ConversationID: "t.+15551234567",
		URL:            convURL,
	})

	st := g.store.Get("t.+15551234567")
	if !st.IsActive {
		t.Error("conversation not active after activate event")
	}
	if st.Persona != "margaret" {
		t.Errorf("persona = %q, want default", st.Persona)
	}
	if st.Model != "test-model" {
		t.Errorf("model = %q, want configured default", st.Model)
	}
}

func TestActivateRestoresSavedChoices(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeGen{response: "hi"})

	if err := g.choices.SetPersona("t.+15551234567", "alex"); err != nil {
		t.Fatal(err)
	}
	if err := g.choices.SetModel("t.+15551234567", "llama3:8b"); err != nil {
		t.Fatal(err)
	}

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:           bus.EventActivate,
		ConversationID: "t.+15551234567",
		URL:            convURL,
	})

	st := g.store.Get("t.+15551234567")
	if st.Persona != "alex" {
		t.Errorf("persona = %q, want restored alex", st.Persona)
	}
	if st.Model != "llama3:8b" {
		t.Errorf("model = %q, want restored llama3:8b", st.Model)
	}
}

func TestDeactivate(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeGen{response: "hi"})

	g.handleEvent(context.Background(), bus.InboundEvent{Type: bus.EventActivate, ConversationID: "abc"})
	g.handleEvent(context.Background(), bus.InboundEvent{Type: bus.EventDeactivate, ConversationID: "abc"})

	if g.store.Get("abc").IsActive {
		t.Error("conversation still active after deactivate")
	}
}

func TestChoicePersisted(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeGen{response: "hi"})

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:           bus.EventChoice,
		ConversationID: "abc",
		Persona:        "casey",
		Model:          "mistral:7b",
	})

	st := g.store.Get("abc")
	if st.Persona != "casey" || st.Model != "mistral:7b" {
		t.Errorf("state = %q/%q", st.Persona, st.Model)
	}
	if saved, _ := g.choices.PersonaFor("abc"); saved != "casey" {
		t.Errorf("persisted persona = %q", saved)
	}
	if saved, _ := g.choices.ModelFor("abc"); saved != "mistral:7b" {
		t.Errorf("persisted model = %q", saved)
	}
}

func TestUnknownPersonaChoiceIgnored(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeGen{response: "hi"})

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:           bus.EventChoice,
		ConversationID: "abc",
		Persona:        "nobody",
	})

	if got := g.store.Get("abc").Persona; got != "margaret" {
		t.Errorf("persona = %q, want untouched default", got)
	}
	if saved, _ := g.choices.PersonaFor("abc"); saved != "" {
		t.Errorf("persisted persona = %q, want none", saved)
	}
}

func TestSnapshotDrivesReply(t *testing.T) {
	gen := &fakeGen{response: "hello neighbor"}
	g, poster, _ := newTestGateway(t, gen)

	g.store.Update("abc", func(s *conversation.State) { s.IsActive = true })

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:           bus.EventSnapshot,
		ConversationID: "abc",
		Markup:         threadMarkup("anyone home?"),
	})

	select {
	case text := <-poster.posted:
		if text != "hello neighbor" {
			t.Errorf("posted %q", text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reply posted for snapshot")
	}
}

func TestExtensionContextInvalidatedSchedulesReload(t *testing.T) {
	g, _, sink := newTestGateway(t, &fakeGen{})
	g.reloadDelay = 10 * time.Millisecond

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:    bus.EventError,
		Message: "Extension context invalidated.",
	})

	select {
	case ev := <-sink.events:
		if !strings.HasPrefix(ev, "warning:") {
			t.Errorf("notification = %q, want warning", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	select {
	case cmd := <-g.bus.Outbound:
		if cmd.Type != bus.CommandReload {
			t.Errorf("command = %q, want reload", cmd.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload command scheduled")
	}
}

func TestOtherExtensionErrorNotifies(t *testing.T) {
	g, _, sink := newTestGateway(t, &fakeGen{})

	g.handleEvent(context.Background(), bus.InboundEvent{
		Type:    bus.EventError,
		Message: "message container not found",
	})

	select {
	case ev := <-sink.events:
		if ev != "error: message container not found" {
			t.Errorf("notification = %q", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}

func TestCatalogOnlyForListingBackends(t *testing.T) {
	g, _, _ := newTestGateway(t, &fakeGen{})
	if g.catalog != nil {
		t.Error("catalog created for a backend without model listing")
	}

	lg := &listingGen{listed: []string{"llama3:8b"}}
	g2, _, _ := newTestGateway(t, lg)
	if g2.catalog == nil {
		t.Fatal("catalog missing for a listing backend")
	}
	if got := g2.catalog.Refresh(context.Background()); len(got) != 1 || got[0] != "llama3:8b" {
		t.Errorf("catalog models = %v", got)
	}
}
