package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	c := NewCollector("dev")
	for i := 0; i < 3; i++ {
		c.RowRead()
	}
	c.RowDropped("invalid_tract")
	c.RowDropped("dev_filter")
	c.RowDropped("dev_filter")
	c.RowWritten()

	if got := testutil.ToFloat64(c.rowsRead); got != 3 {
		t.Errorf("rows read: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.rowsDropped.WithLabelValues("dev_filter")); got != 2 {
		t.Errorf("dev_filter drops: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.rowsWritten); got != 1 {
		t.Errorf("rows written: got %v, want 1", got)
	}

	c.Finish(1500*time.Millisecond, true)
	if got := testutil.ToFloat64(c.runDuration); got != 1.5 {
		t.Errorf("duration: got %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(c.lastSuccess); got == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCollector("prod")
	c.RowRead()
	if err := c.Push(context.Background(), srv.URL); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !strings.Contains(path, "/job/"+Job) {
		t.Errorf("push path: got %s", path)
	}
	if !strings.Contains(body, "ffiec_rows_read_total") {
		t.Error("pushed body does not contain ffiec_rows_read_total")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewCollector("prod").Push(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error from failing gateway")
	}
}
