package hunt

import (
	"context"
	"testing"
	"time"
)

type stubNotifier struct {
	sent chan *RunResult
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{sent: make(chan *RunResult, 1)}
}

func (n *stubNotifier) Send(_ context.Context, result *RunResult) error {
	n.sent <- result
	return nil
}

func testService(t *testing.T, runner QueryRunner, notifier Notifier) *Service {
	t.Helper()
	gen := &stubGen{}
	eng, err := NewEngine(nil, nil, fullStages(gen, &stubFeed{}, runner, &stubInvoker{})...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewService(eng, notifier, nil, nil)
}

func TestServiceRun_EmptyInput(t *testing.T) {
	t.Parallel()

	svc := testService(t, &stubRunner{}, nil)
	result, err := svc.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ID == "" {
		t.Error("expected run id")
	}
	if result.Outcome != OutcomeClean {
		t.Errorf("expected clean outcome, got %q", result.Outcome)
	}
	if len(result.Alerts) != 0 || result.Story != nil || result.Correlation != nil {
		t.Errorf("empty input must stay empty: %+v", result)
	}
}

func TestServiceRun_AlertsEndToEnd(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{rows: []map[string]any{
		{"id": "row-1", "event": "login_fail", "host": "web-01", "severity": 4.0},
	}}
	notifier := newStubNotifier()
	svc := testService(t, runner, notifier)

	result, err := svc.Run(context.Background(), loginFailMessages("web-01", 5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Outcome != OutcomeAlerts {
		t.Fatalf("expected alerts outcome, got %q", result.Outcome)
	}
	// both compiled queries (bruteforce and anomaly) return the stub row
	if len(result.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(result.Alerts))
	}
	if result.Story == nil || result.Story.Summary == "" {
		t.Errorf("expected a story, got %+v", result.Story)
	}
	if result.Correlation == nil || result.Correlation.Incident == nil {
		t.Fatalf("expected a lone incident, got %+v", result.Correlation)
	}
	if result.Correlation.Incident.Hosts[0] != "web-01" {
		t.Errorf("unexpected incident %+v", result.Correlation.Incident)
	}

	select {
	case sent := <-notifier.sent:
		if sent.ID != result.ID {
			t.Errorf("notified wrong run: %q vs %q", sent.ID, result.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a completion notification")
	}
}

func TestServiceRun_NoNotificationWithoutCorrelation(t *testing.T) {
	t.Parallel()

	notifier := newStubNotifier()
	svc := testService(t, &stubRunner{}, notifier)

	if _, err := svc.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case sent := <-notifier.sent:
		t.Fatalf("unexpected notification for clean run: %+v", sent)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceStream_SnapshotsAndID(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{rows: []map[string]any{
		{"event": "login_fail", "host": "web-01", "severity": 4.0},
	}}
	svc := testService(t, runner, nil)

	id, ch := svc.Stream(context.Background(), loginFailMessages("web-01", 5))
	if id == "" {
		t.Error("expected run id")
	}

	var snaps []Snapshot
	for snap := range ch {
		if snap.Err != nil {
			t.Fatalf("stream error: %v", snap.Err)
		}
		snaps = append(snaps, snap)
	}

	if len(snaps) != len(pipelineOrder) {
		t.Fatalf("expected %d snapshots, got %d", len(pipelineOrder), len(snaps))
	}
	final := snaps[len(snaps)-1]
	if final.Stage != StageRespond {
		t.Errorf("expected final snapshot from respond, got %v", final.Stage)
	}
	if final.State.Story == nil {
		t.Error("expected story in final snapshot")
	}
}

func TestServiceRun_Idempotent(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"id": "row-1", "event": "login_fail", "host": "web-01", "severity": 4.0},
		{"id": "row-2", "event": "login_fail", "host": "web-02", "severity": 2.0},
	}

	run := func() *RunResult {
		svc := testService(t, &stubRunner{rows: rows}, nil)
		result, err := svc.Run(context.Background(), loginFailMessages("web-01", 5))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if len(a.Alerts) != len(b.Alerts) {
		t.Fatalf("alert count differs: %d vs %d", len(a.Alerts), len(b.Alerts))
	}
	if a.Correlation.Cluster == nil || b.Correlation.Cluster == nil {
		t.Fatal("both runs should produce a cluster")
	}
	if len(a.Correlation.Cluster.Incidents) != len(b.Correlation.Cluster.Incidents) {
		t.Error("incident grouping differs between identical runs")
	}
}
