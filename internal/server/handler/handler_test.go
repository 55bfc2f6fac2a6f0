package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brunovh/grainalloc/internal/domain"
	"github.com/brunovh/grainalloc/internal/run"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSink struct {
	allocs []domain.Allocation
	err    error

	gotLimit  int
	gotOffset int
}

func (f *fakeSink) Prepare(ctx context.Context) error { return nil }

func (f *fakeSink) ReplaceAll(ctx context.Context, allocs []domain.Allocation) error { return nil }

func (f *fakeSink) List(ctx context.Context, limit, offset int) ([]domain.Allocation, error) {
	f.gotLimit, f.gotOffset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return f.allocs, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestGetRunReturnsSnapshot(t *testing.T) {
	state := run.New()
	if err := state.Begin("run-1"); err != nil {
		t.Fatal(err)
	}
	state.Infof("loading")

	h := NewRunHandler(state, testLogger())
	rec := httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/run", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["run_id"] != "run-1" || body["status"] != "running" {
		t.Errorf("snapshot = %v", body)
	}
	if logs, ok := body["log"].([]any); !ok || len(logs) != 1 {
		t.Errorf("log = %v, want one entry", body["log"])
	}
}

func TestTriggerRunAccepted(t *testing.T) {
	ch := make(chan struct{}, 1)
	h := NewRunHandler(run.New(), testLogger()).WithTriggerChannel(ch)

	rec := httptest.NewRecorder()
	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/run/trigger", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	select {
	case <-ch:
	default:
		t.Error("trigger was not sent on the channel")
	}
}

func TestTriggerRunConflictWhileRunning(t *testing.T) {
	state := run.New()
	if err := state.Begin("run-1"); err != nil {
		t.Fatal(err)
	}
	ch := make(chan struct{}, 1)
	h := NewRunHandler(state, testLogger()).WithTriggerChannel(ch)

	rec := httptest.NewRecorder()
	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/run/trigger", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	select {
	case <-ch:
		t.Error("conflicting trigger must not reach the run loop")
	default:
	}
}

func TestTriggerRunPendingTriggerNotDuplicated(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{} // pending, not yet consumed
	h := NewRunHandler(run.New(), testLogger()).WithTriggerChannel(ch)

	rec := httptest.NewRecorder()
	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/run/trigger", nil))

	// Still accepted; the pending trigger covers this request.
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestListAllocationsPagination(t *testing.T) {
	sink := &fakeSink{allocs: []domain.Allocation{{OriginOrder: "b1", Quantity: 40}}}
	h := NewAllocationHandler(sink, testLogger())

	rec := httptest.NewRecorder()
	h.ListAllocations(rec, httptest.NewRequest(http.MethodGet, "/api/allocations?limit=5000&offset=20", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sink.gotLimit != 1000 {
		t.Errorf("limit = %d, want clamped to 1000", sink.gotLimit)
	}
	if sink.gotOffset != 20 {
		t.Errorf("offset = %d, want 20", sink.gotOffset)
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestListAllocationsSinkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection refused")}
	h := NewAllocationHandler(sink, testLogger())

	rec := httptest.NewRecorder()
	h.ListAllocations(rec, httptest.NewRequest(http.MethodGet, "/api/allocations", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealthCheckOK(t *testing.T) {
	h := NewHealthHandler(testLogger(), map[string]Pinger{
		"postgres": &fakePinger{},
		"redis":    &fakePinger{},
	})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	h := NewHealthHandler(testLogger(), map[string]Pinger{
		"postgres": &fakePinger{},
		"redis":    &fakePinger{err: errors.New("dial tcp: refused")},
	})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if checks["postgres"] != "ok" {
		t.Errorf("postgres check = %v, want ok", checks["postgres"])
	}
}
