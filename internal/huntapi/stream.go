package huntapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/hunt/internal/hunt"
)

// streamEvent is one NDJSON line of a streamed run.
type streamEvent struct {
	ID    string      `json:"id"`
	Stage string      `json:"stage"`
	State *hunt.State `json:"state,omitempty"`
	Error string      `json:"error,omitempty"`
}

// handleStreamHunt runs the pipeline and writes one NDJSON line per
// completed stage. The connection stays open for the whole run; clients
// read lines until EOF.
func (a *API) handleStreamHunt(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	id, snaps := a.svc.Stream(r.Context(), req.toMessages())

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("hunt.id", id))

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for snap := range snaps {
		ev := streamEvent{ID: id, Stage: snap.Stage.String(), State: snap.State}
		if snap.Err != nil {
			ev.Error = snap.Err.Error()
		}
		if err := enc.Encode(&ev); err != nil {
			a.logger.Warn(r.Context(), "stream write failed", "hunt_id", id, "error", err)
			return
		}
		flusher.Flush()
	}
}
