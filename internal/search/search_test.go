package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestExecute_ConvertsSchemaAndRows(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_plugins/_sql" {
			t.Errorf("path = %q, want /_plugins/_sql", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["query"] == "" {
			t.Error("expected query in request body")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"schema": [{"name":"host","type":"text"},{"name":"severity","type":"long"}],
			"datarows": [["web01", 5], ["web02", 2]]
		}`))
	})

	rs, err := c.Execute(context.Background(), "SELECT host, severity FROM logs WHERE severity > 1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rs.Columns) != 2 || rs.Columns[0] != "host" {
		t.Errorf("Columns = %v, want [host severity]", rs.Columns)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rs.Rows))
	}
	if rs.Rows[0]["host"] != "web01" {
		t.Errorf("rows[0][host] = %v, want web01", rs.Rows[0]["host"])
	}
	if rs.Rows[1]["severity"] != float64(2) {
		t.Errorf("rows[1][severity] = %v, want 2", rs.Rows[1]["severity"])
	}
}

func TestExecute_ShortRowTolerated(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"schema":[{"name":"a"},{"name":"b"}],"datarows":[["only-a"]]}`))
	})

	rs, err := c.Execute(context.Background(), "SELECT a, b FROM logs WHERE a = 'x'")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rs.Rows[0]["a"] != "only-a" {
		t.Errorf("rows[0][a] = %v, want only-a", rs.Rows[0]["a"])
	}
	if _, ok := rs.Rows[0]["b"]; ok {
		t.Error("missing cell must not be present in row map")
	}
}

func TestExecute_BackendError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"type":"IndexNotFoundException"}}`, http.StatusBadRequest)
	})

	if _, err := c.Execute(context.Background(), "SELECT * FROM missing WHERE x = 1"); err == nil {
		t.Fatal("expected error on 400")
	}
}
