package conversation

import "testing"

func TestStore_LazyDefaults(t *testing.T) {
	s := NewStore("llama3")
	st := s.Get("abc")

	if st.IsActive {
		t.Error("new conversation must start inactive")
	}
	if len(st.Context) != 0 {
		t.Errorf("new conversation context len = %d, want 0", len(st.Context))
	}
	if st.Persona != "margaret" {
		t.Errorf("Persona = %q, want default margaret", st.Persona)
	}
	if st.Model != "llama3" {
		t.Errorf("Model = %q, want llama3", st.Model)
	}
	if st.Processing {
		t.Error("new conversation must not be processing")
	}
}

func TestStore_OneEntryPerID(t *testing.T) {
	s := NewStore("m")
	s.Update("abc", func(st *State) { st.IsActive = true })

	if !s.Get("abc").IsActive {
		t.Error("second Get must observe the first Update")
	}
	if len(s.All()) != 1 {
		t.Errorf("All() len = %d, want 1", len(s.All()))
	}
}

func TestStore_SingleFlight(t *testing.T) {
	s := NewStore("m")

	if !s.TryBeginProcessing("abc") {
		t.Fatal("first TryBeginProcessing must succeed")
	}
	if s.TryBeginProcessing("abc") {
		t.Error("second TryBeginProcessing must fail while locked")
	}
	if !s.TryBeginProcessing("other") {
		t.Error("lock is per-conversation, other ids must proceed")
	}

	s.EndProcessing("abc")
	if !s.TryBeginProcessing("abc") {
		t.Error("TryBeginProcessing must succeed after release")
	}
}

func TestStore_WatermarkMonotonic(t *testing.T) {
	s := NewStore("m")

	s.AdvanceWatermark("abc", 100)
	s.AdvanceWatermark("abc", 50)
	if got := s.Get("abc").LastProcessedTimestamp; got != 100 {
		t.Errorf("watermark = %d, want 100 after lower advance ignored", got)
	}

	s.AdvanceWatermark("abc", 200)
	if got := s.Get("abc").LastProcessedTimestamp; got != 200 {
		t.Errorf("watermark = %d, want 200", got)
	}

	// Even a raw Update cannot move it backwards.
	s.Update("abc", func(st *State) { st.LastProcessedTimestamp = 10 })
	if got := s.Get("abc").LastProcessedTimestamp; got != 200 {
		t.Errorf("watermark = %d, want 200 after backwards Update clamped", got)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore("m")
	s.Update("abc", func(st *State) {
		st.Context = append(st.Context, ContextEntry{Text: "hi", Author: "555", Timestamp: 1})
	})

	snap := s.Get("abc")
	snap.Context[0].Text = "mutated"

	if s.Get("abc").Context[0].Text != "hi" {
		t.Error("mutating a snapshot must not affect stored state")
	}
}

func TestIDFromURL(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"https://voice.example.com/u/0/messages?itemId=t.%2B15551234567", "t.+15551234567", true},
		{"https://voice.example.com/u/0/messages?itemId=abc", "abc", true},
		{"https://voice.example.com/u/0/messages", "", false},
		{"://bad", "", false},
		{"https://voice.example.com/?itemId=", "", false},
	}

	for _, tt := range tests {
		got, ok := IDFromURL(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("IDFromURL(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
