package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// collector is a test HTTP endpoint recording delivered event names.
type collector struct {
	mu    sync.Mutex
	names []string
}

func (c *collector) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.names = append(c.names, ev.Name)
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestHTTPSinkDelivers(t *testing.T) {
	col := &collector{}
	ts := httptest.NewServer(col.handler())
	defer ts.Close()

	sink := NewHTTPSink(ts.URL, zap.NewNop())
	ctx := context.Background()
	sink.Record(ctx, Event{Name: AssignmentCreated})
	sink.Record(ctx, Event{Name: "conversion"})
	sink.Record(ctx, Event{Name: "click"})
	sink.Flush()

	got := col.all()
	if len(got) != 3 {
		t.Fatalf("expected 3 delivered events, got %d: %v", len(got), got)
	}
	if got[0] != AssignmentCreated || got[1] != "conversion" || got[2] != "click" {
		t.Errorf("unexpected delivery order: %v", got)
	}
}

func TestHTTPSinkRecordAfterFlush(t *testing.T) {
	col := &collector{}
	ts := httptest.NewServer(col.handler())
	defer ts.Close()

	sink := NewHTTPSink(ts.URL, zap.NewNop())
	sink.Flush()

	// Must neither panic nor deliver.
	sink.Record(context.Background(), Event{Name: "late"})
	sink.Flush()

	if got := col.all(); len(got) != 0 {
		t.Errorf("expected no deliveries after flush, got %v", got)
	}
}

func TestHTTPSinkDeliveryFailureSwallowed(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close() // connection refused from here on

	sink := NewHTTPSink(url, zap.NewNop())
	sink.Record(context.Background(), Event{Name: "conversion"})
	sink.Flush()
}
