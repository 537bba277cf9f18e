// Package huntapi exposes the hunt pipeline over HTTP.
package huntapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/hunt/internal/hunt"
)

// HuntService defines the business operations huntapi needs.
type HuntService interface {
	Run(ctx context.Context, messages []hunt.Message) (*hunt.RunResult, error)
	Stream(ctx context.Context, messages []hunt.Message) (string, <-chan hunt.Snapshot)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    HuntService
}

// New creates a new API handler.
func New(logger log.Logger, svc HuntService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("hunt service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/hunts", a.handleRunHunt)
		r.Post("/hunts/stream", a.handleStreamHunt)
	})
}

// runRequest is the submission payload: a batch of raw records to
// investigate. Records are free-form; normalization happens in the pipeline.
type runRequest struct {
	Messages []map[string]any `json:"messages"`
}

func (r *runRequest) toMessages() []hunt.Message {
	msgs := make([]hunt.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, hunt.Message{Content: m})
	}
	return msgs
}

func (a *API) handleRunHunt(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("hunt.messages", len(req.Messages)))

	result, err := a.svc.Run(r.Context(), req.toMessages())
	if err != nil {
		a.logger.Error(r.Context(), err, "hunt run failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(
		attribute.String("hunt.id", result.ID),
		attribute.String("hunt.outcome", result.Outcome),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
