// Package gateway wires the daemon together: the extension bridge, the
// conversation store, the generation backend and the scheduled model refresh.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quillworks/voxpilot/internal/bridge"
	"github.com/quillworks/voxpilot/internal/bus"
	"github.com/quillworks/voxpilot/internal/choices"
	"github.com/quillworks/voxpilot/internal/config"
	"github.com/quillworks/voxpilot/internal/conversation"
	"github.com/quillworks/voxpilot/internal/engine"
	"github.com/quillworks/voxpilot/internal/injector"
	"github.com/quillworks/voxpilot/internal/llm"
	"github.com/quillworks/voxpilot/internal/notify"
	"github.com/quillworks/voxpilot/internal/persona"
)

// GeneratorFactory creates the generation client (allows mocking in tests).
type GeneratorFactory func(cfg *config.Config) llm.Generator

// Options for creating a Gateway.
type Options struct {
	GeneratorFactory GeneratorFactory
	Poster           engine.Poster  // overrides the bridge-backed injector
	SignalChan       chan os.Signal // for testing signal handling
}

const defaultReloadDelay = 2 * time.Second

type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	store    *conversation.Store
	gen      llm.Generator
	catalog  *llm.Catalog
	engine   *engine.Engine
	bridge   *bridge.Bridge
	notifier *notify.Notifier
	choices  *choices.Store
	cron     *cron.Cron

	reloadDelay time.Duration
	signalChan  chan os.Signal // for testing
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:         cfg,
		reloadDelay: defaultReloadDelay,
		signalChan:  opts.SignalChan,
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)
	g.store = conversation.NewStore(cfg.Provider.Model)

	if opts.GeneratorFactory != nil {
		g.gen = opts.GeneratorFactory(cfg)
	} else {
		g.gen = llm.New(cfg.Provider)
	}
	if lister, ok := g.gen.(llm.ModelLister); ok {
		g.catalog = llm.NewCatalog(lister)
	}

	ch, err := choices.Open(cfg.Choices.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open choices store: %w", err)
	}
	g.choices = ch

	ackTimeout := time.Duration(cfg.Gateway.PostAckTimeout) * time.Second
	g.bridge = bridge.New(cfg.Gateway.Host, cfg.Gateway.Port, ackTimeout, g.bus)
	g.bridge.StatusFunc = g.status

	g.notifier = notify.New(notify.LogSink{})
	g.notifier.Add(g.bridge)
	if cfg.Notify.Telegram.Enabled {
		sink, err := notify.NewTelegramSink(cfg.Notify.Telegram)
		if err != nil {
			log.Printf("[gateway] telegram sink disabled: %v", err)
		} else {
			g.notifier.Add(sink)
		}
	}

	poster := opts.Poster
	if poster == nil {
		poster = injector.New(g.bridge, cfg.Typing.WordsPerMinute)
	}
	g.engine = engine.New(g.store, g.gen, poster, g.notifier)

	g.cron = cron.New()
	if g.catalog != nil {
		expr := cfg.Gateway.ModelRefresh
		if expr == "" {
			expr = config.DefaultModelRefresh
		}
		if _, err := g.cron.AddFunc(expr, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			g.catalog.Refresh(ctx)
		}); err != nil {
			_ = g.choices.Close()
			return nil, fmt.Errorf("schedule model refresh: %w", err)
		}
	}

	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)
	g.bus.SubscribeOutbound("bridge", func(cmd bus.Command) {
		if err := g.bridge.Send(cmd); err != nil {
			log.Printf("[gateway] send to bridge failed: %v", err)
		}
	})

	if err := g.bridge.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	if g.catalog != nil {
		go func() {
			refreshCtx, refreshCancel := context.WithTimeout(ctx, 30*time.Second)
			defer refreshCancel()
			g.catalog.Refresh(refreshCtx)
		}()
	}
	g.cron.Start()

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case ev := <-g.bus.Inbound:
			g.handleEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleEvent(ctx context.Context, ev bus.InboundEvent) {
	switch ev.Type {
	case bus.EventSnapshot:
		// Scan blocks for the generation and typing delay of at most one
		// reply; other conversations keep flowing.
		go g.engine.Scan(ctx, ev.ConversationID, ev.Markup)

	case bus.EventActivate:
		g.activate(ctx, ev)

	case bus.EventDeactivate:
		log.Printf("[gateway] deactivated %s", ev.ConversationID)
		g.store.Update(ev.ConversationID, func(s *conversation.State) {
			s.IsActive = false
		})

	case bus.EventChoice:
		g.applyChoice(ev)

	case bus.EventError:
		g.handleExtensionError(ev)

	default:
		log.Printf("[gateway] unhandled event type %q", ev.Type)
	}
}

func (g *Gateway) activate(ctx context.Context, ev bus.InboundEvent) {
	log.Printf("[gateway] activated %s", ev.ConversationID)

	personaID := ev.Persona
	if personaID == "" {
		if saved, err := g.choices.PersonaFor(ev.ConversationID); err != nil {
			log.Printf("[gateway] load persona choice: %v", err)
		} else {
			personaID = saved
		}
	}
	model := ev.Model
	if model == "" {
		if saved, err := g.choices.ModelFor(ev.ConversationID); err != nil {
			log.Printf("[gateway] load model choice: %v", err)
		} else {
			model = saved
		}
	}

	g.store.Update(ev.ConversationID, func(s *conversation.State) {
		s.IsActive = true
		if personaID != "" && persona.Exists(personaID) {
			s.Persona = personaID
		}
		if model != "" {
			s.Model = model
		}
	})

	go g.engine.InitializeContext(ctx, ev.ConversationID, ev.Markup)
}

func (g *Gateway) applyChoice(ev bus.InboundEvent) {
	if ev.Persona != "" {
		if !persona.Exists(ev.Persona) {
			log.Printf("[gateway] unknown persona %q, keeping current", ev.Persona)
		} else {
			g.store.Update(ev.ConversationID, func(s *conversation.State) {
				s.Persona = ev.Persona
			})
			if err := g.choices.SetPersona(ev.ConversationID, ev.Persona); err != nil {
				log.Printf("[gateway] save persona choice: %v", err)
			}
		}
	}
	if ev.Model != "" {
		g.store.Update(ev.ConversationID, func(s *conversation.State) {
			s.Model = ev.Model
		})
		if err := g.choices.SetModel(ev.ConversationID, ev.Model); err != nil {
			log.Printf("[gateway] save model choice: %v", err)
		}
	}
}

// handleExtensionError reacts to error reports from the page. An invalidated
// extension context cannot recover on its own, so the page gets reloaded
// after a short grace period.
func (g *Gateway) handleExtensionError(ev bus.InboundEvent) {
	log.Printf("[gateway] extension error: %s", ev.Message)

	if strings.Contains(strings.ToLower(ev.Message), "extension context invalidated") {
		g.notifier.Warning("Extension was reloaded. Refreshing the page to reconnect.")
		time.AfterFunc(g.reloadDelay, func() {
			g.bus.Outbound <- bus.Command{Type: bus.CommandReload}
		})
		return
	}
	g.notifier.Error(ev.Message)
}

func (g *Gateway) status() any {
	active := 0
	for _, st := range g.store.All() {
		if st.IsActive {
			active++
		}
	}
	var models []string
	if g.catalog != nil {
		models = g.catalog.Models()
	}
	return map[string]any{
		"active_conversations": active,
		"models":               models,
		"default_model":        g.cfg.Provider.Model,
	}
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.bridge.Stop()
	if err := g.choices.Close(); err != nil {
		log.Printf("[gateway] close choices store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
