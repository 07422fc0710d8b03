// Package conversation owns per-conversation engine state: activation,
// accumulated context, processed-message watermarks and the single-flight
// processing lock.
package conversation

import (
	"sync"

	"github.com/quillworks/voxpilot/internal/persona"
)

// ContextEntry is one line of accumulated conversation history.
type ContextEntry struct {
	Text      string `json:"text"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

// State is the engine's view of one conversation. Zero-value fields are
// meaningful: a fresh conversation is inactive with empty context.
type State struct {
	IsActive bool `json:"isActive"`

	// Context is the accumulated history used as generation context.
	// Append-only during normal operation.
	Context []ContextEntry `json:"context"`

	// LastProcessedCount is the number of messages already folded into
	// context at the end of the last scan cycle.
	LastProcessedCount int `json:"lastProcessedCount"`

	// LastProcessedTimestamp is the timestamp of the newest inbound message
	// that has already triggered (or been skipped for) a reply. Monotonically
	// non-decreasing.
	LastProcessedTimestamp int64 `json:"lastProcessedTimestamp"`

	// Processing is the single-flight lock: true while a respond cycle is in
	// flight for this conversation.
	Processing bool `json:"processing"`

	Persona string `json:"persona"`
	Model   string `json:"model"`
}

// Store holds one State per conversation id for the lifetime of the session.
// It is constructed once at session start and passed by handle to every
// component, so tests can run independent stores side by side.
type Store struct {
	mu           sync.Mutex
	states       map[string]*State
	defaultModel string
}

// NewStore creates an empty store. defaultModel seeds the model selection of
// lazily created conversations.
func NewStore(defaultModel string) *Store {
	return &Store{
		states:       make(map[string]*State),
		defaultModel: defaultModel,
	}
}

// locked; lazily creates the entry with defaults.
func (s *Store) state(id string) *State {
	st, ok := s.states[id]
	if !ok {
		st = &State{
			Persona: persona.Default().ID,
			Model:   s.defaultModel,
		}
		s.states[id] = st
	}
	return st
}

// Get returns a snapshot of the conversation's state, creating it with
// defaults on first reference.
func (s *Store) Get(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.state(id))
}

// Update mutates the conversation's state under the store lock and returns
// the resulting snapshot. The timestamp watermark never moves backwards, no
// matter what the mutator does.
func (s *Store) Update(id string, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(id)
	prevWatermark := st.LastProcessedTimestamp
	fn(st)
	if st.LastProcessedTimestamp < prevWatermark {
		st.LastProcessedTimestamp = prevWatermark
	}
	return snapshot(st)
}

// TryBeginProcessing acquires the single-flight lock for id. It returns false
// when a respond cycle is already in flight, in which case the caller must
// drop its trigger rather than queue it.
func (s *Store) TryBeginProcessing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(id)
	if st.Processing {
		return false
	}
	st.Processing = true
	return true
}

// EndProcessing releases the single-flight lock. Safe to call on every exit
// path, including ones that never held the lock.
func (s *Store) EndProcessing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(id).Processing = false
}

// AdvanceWatermark raises the timestamp watermark to ts; lower values are
// ignored.
func (s *Store) AdvanceWatermark(id string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(id)
	if ts > st.LastProcessedTimestamp {
		st.LastProcessedTimestamp = ts
	}
}

// All returns a snapshot of every known conversation, for introspection.
func (s *Store) All() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]State, len(s.states))
	for id, st := range s.states {
		out[id] = snapshot(st)
	}
	return out
}

func snapshot(st *State) State {
	cp := *st
	cp.Context = make([]ContextEntry, len(st.Context))
	copy(cp.Context, st.Context)
	return cp
}
