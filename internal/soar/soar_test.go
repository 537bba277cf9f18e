package soar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInvoke(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/actions/isolate_host" {
			t.Errorf("path = %q, want /api/actions/isolate_host", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}

		var payload struct {
			ActionName string         `json:"action_name"`
			Parameters map[string]any `json:"parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.ActionName != "isolate_host" {
			t.Errorf("action_name = %q, want isolate_host", payload.ActionName)
		}
		if payload.Parameters["incident_id"] != "inc-1" {
			t.Errorf("incident_id = %v, want inc-1", payload.Parameters["incident_id"])
		}

		w.Write([]byte(`{"status":"success","message":"host isolated","data":{"ticket":"T-42"}}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok").Invoke(context.Background(), "isolate_host", map[string]any{
		"incident_id": "inc-1",
		"severity":    7.0,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Status != "success" {
		t.Errorf("Status = %q, want success", res.Status)
	}
	if res.Data["ticket"] != "T-42" {
		t.Errorf("Data[ticket] = %v, want T-42", res.Data["ticket"])
	}
}

func TestInvoke_PlatformError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":"error"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "").Invoke(context.Background(), "block_ip", nil); err == nil {
		t.Fatal("expected error on 502")
	}
}
