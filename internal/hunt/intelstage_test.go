package hunt

import (
	"context"
	"errors"
	"testing"

	"github.com/linnemanlabs/hunt/internal/event"
	"github.com/linnemanlabs/hunt/internal/intel"
)

func enrichInput(hosts ...string) *State {
	st := NewState(nil)
	for i, h := range hosts {
		st.Evidence.Raw = append(st.Evidence.Raw, event.Normalized{
			Fingerprint: string(rune('a' + i)),
			Type:        "login_fail",
			Host:        h,
		})
	}
	return st
}

func TestIntel_ExactMatch(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-1", Type: "hostname", Value: "bad-host.example"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, &stubGen{}, IntelConfig{}, nil, nil)

	st := enrichInput("bad-host.example", "clean-host")
	dec := stage.Run(context.Background(), st)

	if dec.Next != StageHypothesis {
		t.Fatalf("expected next hypothesis, got %v", dec.Next)
	}
	if len(st.Evidence.Enriched) != 2 {
		t.Fatalf("expected 2 enriched events, got %d", len(st.Evidence.Enriched))
	}

	hit := st.Evidence.Enriched[0]
	if !hit.IndicatorMatch || hit.Indicator == nil || hit.Indicator.ID != "ind-1" {
		t.Errorf("expected exact match on first event: %+v", hit)
	}
	// identical strings embed identically
	if hit.Confidence < 0.99 {
		t.Errorf("expected near-1 confidence for exact match, got %f", hit.Confidence)
	}
	if hit.Rationale == "" {
		t.Error("expected rationale for high-similarity exact match")
	}

	if st.Evidence.Enriched[1].IndicatorMatch {
		t.Errorf("clean host should not match: %+v", st.Evidence.Enriched[1])
	}
}

func TestIntel_MetaIPExactMatch(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-ip", Type: "ip", Value: "10.0.0.99"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, &stubGen{}, IntelConfig{}, nil, nil)

	st := NewState(nil)
	st.Evidence.Raw = []event.Normalized{{
		Fingerprint: "fp-1",
		Type:        "proc_start",
		Host:        "workstation-1",
		Meta:        map[string]any{"ip": "10.0.0.99"},
	}}
	stage.Run(context.Background(), st)

	hit := st.Evidence.Enriched[0]
	if !hit.IndicatorMatch || hit.Indicator == nil || hit.Indicator.ID != "ind-ip" {
		t.Fatalf("expected exact match on meta ip: %+v", hit)
	}
}

func TestIntel_FuzzyMatch(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-2", Type: "hostname", Value: "bad-host"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, &stubGen{}, IntelConfig{}, nil, nil)

	st := enrichInput("bad-host.example.com")
	stage.Run(context.Background(), st)

	hit := st.Evidence.Enriched[0]
	if !hit.IndicatorMatch {
		t.Fatalf("expected fuzzy match: %+v", hit)
	}
	if hit.Confidence != fuzzyConfidence {
		t.Errorf("expected fuzzy confidence %f, got %f", fuzzyConfidence, hit.Confidence)
	}
}

func TestIntel_MetaFuzzyMatch(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-net", Type: "ip", Value: "10.0.0"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, &stubGen{}, IntelConfig{}, nil, nil)

	st := NewState(nil)
	st.Evidence.Raw = []event.Normalized{{
		Fingerprint: "fp-1",
		Type:        "dns_query",
		Host:        "clean-host",
		Meta:        map[string]any{"ip": "10.0.0.42"},
	}}
	stage.Run(context.Background(), st)

	hit := st.Evidence.Enriched[0]
	if !hit.IndicatorMatch || hit.Indicator == nil || hit.Indicator.ID != "ind-net" {
		t.Fatalf("expected fuzzy match on meta value: %+v", hit)
	}
	if hit.Confidence != fuzzyConfidence {
		t.Errorf("expected fuzzy confidence %f, got %f", fuzzyConfidence, hit.Confidence)
	}
}

func TestIntel_RationaleFromGenerator(t *testing.T) {
	t.Parallel()

	gen := &stubGen{texts: []string{"host matches tracked attacker infrastructure"}}
	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-1", Type: "hostname", Value: "bad-host.example"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, gen, IntelConfig{}, nil, nil)

	st := enrichInput("bad-host.example")
	stage.Run(context.Background(), st)

	hit := st.Evidence.Enriched[0]
	if hit.Rationale != "host matches tracked attacker infrastructure" {
		t.Errorf("expected generated rationale, got %q", hit.Rationale)
	}
	if gen.callCount() != 1 {
		t.Errorf("expected 1 generation call, got %d", gen.callCount())
	}
}

func TestIntel_RationaleFailureKeepsMatch(t *testing.T) {
	t.Parallel()

	gen := &stubGen{err: errors.New("backend down")}
	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-1", Type: "hostname", Value: "bad-host.example"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, gen, IntelConfig{}, nil, nil)

	st := enrichInput("bad-host.example")
	stage.Run(context.Background(), st)

	hit := st.Evidence.Enriched[0]
	if !hit.IndicatorMatch {
		t.Fatalf("match must survive a failed rationale: %+v", hit)
	}
	if hit.Rationale != "" {
		t.Errorf("expected empty rationale, got %q", hit.Rationale)
	}
}

func TestIntel_FeedFailureKeepsEventsUnenriched(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{err: errors.New("feed unavailable")}
	stage := NewIntelStage(feed, charEmbed{}, &stubGen{}, IntelConfig{}, nil, nil)

	st := enrichInput("host-a", "host-b")
	dec := stage.Run(context.Background(), st)

	if dec.Next != StageHypothesis {
		t.Fatalf("expected next hypothesis, got %v", dec.Next)
	}
	if len(st.Evidence.Enriched) != 2 {
		t.Fatalf("expected every event kept, got %d", len(st.Evidence.Enriched))
	}
	for _, e := range st.Evidence.Enriched {
		if e.IndicatorMatch {
			t.Errorf("unexpected match with failed feed: %+v", e)
		}
	}
}

func TestIntel_UnknownHostSkipsMatching(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{indicators: []intel.Indicator{
		{ID: "ind-3", Type: "hostname", Value: "unknown"},
	}}
	stage := NewIntelStage(feed, charEmbed{}, &stubGen{}, IntelConfig{}, nil, nil)

	st := enrichInput("unknown")
	stage.Run(context.Background(), st)

	if st.Evidence.Enriched[0].IndicatorMatch {
		t.Error("sentinel host must never match indicators")
	}
}
