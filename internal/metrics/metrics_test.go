package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncAttempt("h", "apt")
	IncAttempt("h", "apt")
	IncRetry("h", "apt")
	IncCommit("h", "apt")
	IncExhausted("h", "scoop")
	IncNotFound("h", "yum")
	ObserveAttempts("h", "apt", 2)
	SetStatus("h", "apt", "success")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"swupdate_row_attempts_total":      false,
		"swupdate_row_commits_total":       false,
		"swupdate_row_retries_total":       false,
		"swupdate_row_exhausted_total":     false,
		"swupdate_row_not_found_total":     false,
		"swupdate_row_attempts_per_update": false,
		"swupdate_row_status":              false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestSetStatusIsExclusive(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	SetStatus("m", "apt", "running")
	SetStatus("m", "apt", "failed")

	if v := testutil.ToFloat64(rowStatus.WithLabelValues("m", "apt", "failed")); v != 1 {
		t.Fatalf("failed gauge = %v", v)
	}
	if v := testutil.ToFloat64(rowStatus.WithLabelValues("m", "apt", "running")); v != 0 {
		t.Fatalf("running gauge = %v", v)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncAttempt("x", "apt")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "swupdate_row_attempts_total") {
		t.Fatalf("metrics output missing attempts_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncAttempt("c", "apt")
			IncRetry("c", "apt")
			IncCommit("c", "apt")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops before Register
	IncAttempt("test", "apt")
	IncCommit("test", "apt")
	IncRetry("test", "apt")
	IncExhausted("test", "apt")
	IncNotFound("test", "apt")
	ObserveAttempts("test", "apt", 1)
	SetStatus("test", "apt", "running")
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
