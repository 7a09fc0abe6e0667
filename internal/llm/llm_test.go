package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/altus4/core/internal/models"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("test-key", "test-model", server.URL, 2*time.Second, nil)
}

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestRewriteQueryReturnsKeywords(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`{"keywords": "golang concurrency patterns"}`)))
	})

	got, err := adapter.RewriteQuery(context.Background(), "how do I do concurrency in go")
	if err != nil {
		t.Fatalf("RewriteQuery() error = %v", err)
	}
	if got != "golang concurrency patterns" {
		t.Errorf("RewriteQuery() = %q", got)
	}
}

func TestRewriteQueryFallsBackOnProviderError(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	got, err := adapter.RewriteQuery(context.Background(), "original query")
	if err != nil {
		t.Fatalf("RewriteQuery() should fail soft, got error = %v", err)
	}
	if got != "original query" {
		t.Errorf("RewriteQuery() = %q, want original query on failure", got)
	}
}

func TestRewriteQueryFallsBackOnMalformedJSON(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`not json`)))
	})

	got, err := adapter.RewriteQuery(context.Background(), "original query")
	if err != nil || got != "original query" {
		t.Errorf("RewriteQuery() = (%q, %v), want original query, nil", got, err)
	}
}

func TestDisabledAdapterNoOps(t *testing.T) {
	var a *Adapter
	if _, err := a.RewriteQuery(context.Background(), "q"); err != nil {
		t.Fatal("nil adapter RewriteQuery should not error")
	}

	empty := New("", "model", "", time.Second, nil)
	if suggestions, err := empty.Suggest(context.Background(), "q", []models.SearchResult{{PrimaryKey: "1"}}); err != nil || suggestions != nil {
		t.Errorf("disabled adapter Suggest() = (%v, %v), want (nil, nil)", suggestions, err)
	}
}

func TestSuggestReturnsSuggestions(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`{"suggestions": ["query a", "query b"]}`)))
	})

	got, err := adapter.Suggest(context.Background(), "q", []models.SearchResult{{PrimaryKey: "1", Table: "posts"}})
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Suggest() = %v, want 2 suggestions", got)
	}
}

func TestOptimizeReturnsTip(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`{"tip": "narrow to one connection"}`)))
	})

	got, err := adapter.Optimize(context.Background(), "q", 3)
	if err != nil || got != "narrow to one connection" {
		t.Errorf("Optimize() = (%q, %v)", got, err)
	}
}
