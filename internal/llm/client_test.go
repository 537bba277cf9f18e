package llm

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

const testModel = "claude-sonnet-4-20250514"

func TestGenerateText_OfflinePlaceholder(t *testing.T) {
	t.Parallel()

	c := New("", testModel)

	got, err := c.GenerateText(context.Background(), "summarize this incident", 64)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if !strings.HasPrefix(got, "[simulated:"+testModel+"]") {
		t.Errorf("text = %q, want simulated prefix", got)
	}

	again, _ := c.GenerateText(context.Background(), "summarize this incident", 64)
	if got != again {
		t.Error("placeholder must be deterministic for the same prompt")
	}
}

func TestGenerateText_PlaceholderTruncatesLongPrompt(t *testing.T) {
	t.Parallel()

	c := New("", testModel)
	long := strings.Repeat("x", 500)

	got, _ := c.GenerateText(context.Background(), long, 64)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("text = %q, want truncation suffix", got)
	}
	if len(got) > 220 {
		t.Errorf("len = %d, want truncated output", len(got))
	}
}

func TestGenerateText_BackendResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %q, want messages endpoint", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "` + testModel + `",
			"content": [{"type": "text", "text": "three failed logins on web01"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 8}
		}`))
	}))
	defer srv.Close()

	c := New("sk-test", testModel, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	got, err := c.GenerateText(context.Background(), "describe", 64)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "three failed logins on web01" {
		t.Errorf("text = %q, want backend text", got)
	}
}

func TestGenerateText_BackendFailureFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"type":"api_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("sk-test", testModel, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	got, err := c.GenerateText(context.Background(), "describe", 64)
	if err != nil {
		t.Fatalf("GenerateText: %v (unavailability must not fail)", err)
	}
	if !strings.HasPrefix(got, "[simulated:") {
		t.Errorf("text = %q, want placeholder on backend failure", got)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	t.Parallel()

	c := New("", testModel)
	a := c.Embed("203.0.113.77")
	b := c.Embed("203.0.113.77")

	if len(a) == 0 {
		t.Fatal("expected non-empty vector")
	}
	if len(a) != len(b) {
		t.Fatalf("lens differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vec[%d] differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors = %v, want 1", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	if got := Cosine(nil, []float64{1}); got != 0 {
		t.Errorf("empty vector = %v, want 0", got)
	}
}
