package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "deepseek-r1:7b" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Stream {
			t.Error("stream must be false")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "hello there"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 5*time.Second)
	got, err := c.Generate(context.Background(), "deepseek-r1:7b", "say hi")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("Generate = %q, want hello there", got)
	}
}

func TestOllamaClient_Generate_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "   "})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), "m", "p")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestOllamaClient_Generate_Unreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := c.Generate(context.Background(), "m", "p")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestOllamaClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ps" {
			t.Errorf("path = %q, want /api/ps", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"deepseek-r1:7b"},{"name":"llama3:8b"},{"name":""}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 5*time.Second)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels error: %v", err)
	}
	if len(models) != 2 || models[0] != "deepseek-r1:7b" || models[1] != "llama3:8b" {
		t.Errorf("models = %v", models)
	}
}

func TestOllamaClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("path = %q, want /api/version", r.URL.Path)
		}
		w.Write([]byte(`{"version":"0.5.0"}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 5*time.Second)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping error: %v", err)
	}

	down := NewOllamaClient("http://127.0.0.1:1", 500*time.Millisecond)
	if err := down.Ping(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Ping err = %v, want ErrUnreachable", err)
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"sounds good"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1", "k", 5*time.Second)
	got, err := c.Generate(context.Background(), "gpt-x", "p")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got != "sounds good" {
		t.Errorf("Generate = %q", got)
	}
}

type fakeLister struct {
	models []string
	err    error
	calls  int
}

func (f *fakeLister) ListModels(ctx context.Context) ([]string, error) {
	f.calls++
	return f.models, f.err
}

func TestCatalog_Refresh(t *testing.T) {
	lister := &fakeLister{models: []string{"a", "b"}}
	cat := NewCatalog(lister)

	if got := cat.Models(); len(got) != 0 {
		t.Errorf("Models() before refresh = %v, want empty", got)
	}

	got := cat.Refresh(context.Background())
	if len(got) != 2 {
		t.Fatalf("Refresh = %v", got)
	}

	lister.err = errors.New("down")
	got = cat.Refresh(context.Background())
	if len(got) != 2 {
		t.Errorf("failed refresh must keep cache, got %v", got)
	}
	if lister.calls != 2 {
		t.Errorf("lister calls = %d, want 2", lister.calls)
	}
}
