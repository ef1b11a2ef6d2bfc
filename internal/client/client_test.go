package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/CivStat/MetricBoard/internal/domain"
	"github.com/CivStat/MetricBoard/internal/domain/metric"
	"github.com/CivStat/MetricBoard/internal/domain/table"
)

// tableServer is a minimal in-memory stand-in for the metrics API.
type tableServer struct {
	mu     sync.Mutex
	metric *metric.Metric
	// failNext forces the next operation POST to fail with this status.
	failNext int
}

func newTableServer() *tableServer {
	m := metric.New("m1", "s1", "Budget")
	m.Version = 1
	return &tableServer{metric: m}
}

func (ts *tableServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/metrics/m1", func(w http.ResponseWriter, _ *http.Request) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		_ = json.NewEncoder(w).Encode(ts.metric)
	})
	mux.HandleFunc("POST /api/v1/metrics/m1/operations", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		defer ts.mu.Unlock()

		if ts.failNext != 0 {
			status := ts.failNext
			ts.failNext = 0
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "forced failure"})
			return
		}

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		op, err := table.DecodeOperation(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next, err := table.Apply(ts.metric.Document, op)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		ts.metric.Document = next
		ts.metric.Version++
		_ = json.NewEncoder(w).Encode(ts.metric)
	})
	mux.HandleFunc("POST /api/v1/metrics/m1/submit", func(w http.ResponseWriter, _ *http.Request) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		if err := ts.metric.Submit(); err != nil {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		ts.metric.Version++
		_ = json.NewEncoder(w).Encode(ts.metric)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *tableServer) {
	t.Helper()
	ts := newTableServer()
	srv := httptest.NewServer(ts.handler())
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithToken("test-token"))
	if err := c.Load(context.Background(), "m1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c, ts
}

func TestLoadMirrorsServerState(t *testing.T) {
	c, _ := newTestClient(t)

	m, err := c.Metric()
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || m.Version != 1 {
		t.Fatalf("unexpected mirror: %+v", m)
	}
	if len(m.Document.Data) != 12 {
		t.Fatalf("expected 12 months, got %d", len(m.Document.Data))
	}
}

func TestApplyUpdatesMirrorAndServer(t *testing.T) {
	c, ts := newTestClient(t)
	ctx := context.Background()

	if err := c.Apply(ctx, table.AddColumn{Column: "Spend", Unit: "mln"}); err != nil {
		t.Fatalf("Apply add_column: %v", err)
	}
	if err := c.Apply(ctx, table.SetCellValue{Column: "Spend", Month: "March", Value: 42}); err != nil {
		t.Fatalf("Apply set_cell_value: %v", err)
	}

	// Mirror adopted the server's version.
	if got := c.Version(); got != 3 {
		t.Fatalf("expected version 3, got %d", got)
	}

	totals, err := c.Totals()
	if err != nil {
		t.Fatal(err)
	}
	if totals["Spend"] != 42 {
		t.Fatalf("expected total 42, got %v", totals["Spend"])
	}

	// Server holds the same document.
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.metric.Document.Data["March"]["Spend"] != 42 {
		t.Fatal("server did not receive the cell value")
	}
}

func TestApplyInvalidOperationFailsLocally(t *testing.T) {
	c, ts := newTestClient(t)

	err := c.Apply(context.Background(), table.SetCellValue{Column: "Ghost", Month: "March", Value: 1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Nothing was sent; neither side changed.
	if c.Version() != 1 {
		t.Fatalf("version changed to %d", c.Version())
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.metric.Version != 1 {
		t.Fatal("server state changed")
	}
}

func TestApplyServerRejectionReverts(t *testing.T) {
	c, ts := newTestClient(t)
	ts.mu.Lock()
	ts.failNext = http.StatusForbidden
	ts.mu.Unlock()

	err := c.Apply(context.Background(), table.AddColumn{Column: "Spend"})
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}

	m, err := c.Metric()
	if err != nil {
		t.Fatal(err)
	}
	if m.Document.HasColumn("Spend") {
		t.Fatal("optimistic change was not reverted")
	}
}

func TestApplyRejectedRenameRevertsTableName(t *testing.T) {
	c, ts := newTestClient(t)
	ts.mu.Lock()
	ts.failNext = http.StatusForbidden
	ts.mu.Unlock()

	err := c.Apply(context.Background(), table.SetTableName{TableName: "Renamed"})
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}

	m, err := c.Metric()
	if err != nil {
		t.Fatal(err)
	}
	if m.TableName != "Budget" {
		t.Fatalf("table name not reverted: got %q, want %q", m.TableName, "Budget")
	}
}

func TestApplyConflictResyncsMirror(t *testing.T) {
	c, ts := newTestClient(t)

	// Another writer changed the table server-side.
	ts.mu.Lock()
	doc, err := table.Apply(ts.metric.Document, table.AddColumn{Column: "Other"})
	if err != nil {
		ts.mu.Unlock()
		t.Fatal(err)
	}
	ts.metric.Document = doc
	ts.metric.Version = 5
	ts.failNext = http.StatusConflict
	ts.mu.Unlock()

	applyErr := c.Apply(context.Background(), table.AddColumn{Column: "Spend"})
	if !errors.Is(applyErr, domain.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", applyErr)
	}

	// The mirror resynced to the server's state.
	if c.Version() != 5 {
		t.Fatalf("expected resynced version 5, got %d", c.Version())
	}
	m, err := c.Metric()
	if err != nil {
		t.Fatal(err)
	}
	if !m.Document.HasColumn("Other") || m.Document.HasColumn("Spend") {
		t.Fatalf("mirror did not reconcile: %v", m.Document.Columns)
	}
}

func TestSubmitAdoptsServerState(t *testing.T) {
	c, _ := newTestClient(t)

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m, err := c.Metric()
	if err != nil {
		t.Fatal(err)
	}
	if m.IsDraft {
		t.Fatal("mirror still marked draft after submit")
	}

	if err := c.Submit(context.Background()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double submit: expected conflict, got %v", err)
	}
}

func TestHandleEventRefreshesStaleMirror(t *testing.T) {
	c, ts := newTestClient(t)

	ts.mu.Lock()
	doc, err := table.Apply(ts.metric.Document, table.AddColumn{Column: "Pushed"})
	if err != nil {
		ts.mu.Unlock()
		t.Fatal(err)
	}
	ts.metric.Document = doc
	ts.metric.Version = 2
	ts.mu.Unlock()

	refreshed, err := c.HandleEvent(context.Background(), "m1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !refreshed {
		t.Fatal("expected a refresh")
	}
	m, err := c.Metric()
	if err != nil {
		t.Fatal(err)
	}
	if !m.Document.HasColumn("Pushed") {
		t.Fatal("mirror missed the pushed change")
	}

	// Same or older version: no refresh.
	refreshed, err = c.HandleEvent(context.Background(), "m1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed {
		t.Fatal("unexpected refresh for stale event")
	}
}

func TestNotLoaded(t *testing.T) {
	c := New("http://localhost:0")

	if _, err := c.Totals(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	if err := c.Apply(context.Background(), table.AddColumn{Column: "X"}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}
