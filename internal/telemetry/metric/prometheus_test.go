package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if r.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
}

func TestGlobal(t *testing.T) {
	r1 := Global()
	r2 := Global()
	if r1 != r2 {
		t.Error("Global() should return the same instance")
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestHandlerServesGoAndProcessMetrics(t *testing.T) {
	r := NewRegistry()
	body := scrape(t, r.Handler())

	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics")
	}
}

func TestRequestMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("get", "ok")
	r.RecordRequest("put", "ok")
	r.RecordRequest("get", "wrong_shard")
	r.ObserveRequestDuration("get", 0.005)
	r.ObserveRequestDuration("get", 0.010)

	body := scrape(t, r.Handler())

	if !strings.Contains(body, `kvgrid_requests_total{op="get",status="ok"} 1`) {
		t.Error("expected kvgrid_requests_total for get/ok")
	}
	if !strings.Contains(body, `kvgrid_requests_total{op="put",status="ok"} 1`) {
		t.Error("expected kvgrid_requests_total for put/ok")
	}
	if !strings.Contains(body, `kvgrid_requests_total{op="get",status="wrong_shard"} 1`) {
		t.Error("expected kvgrid_requests_total for get/wrong_shard")
	}
	if !strings.Contains(body, "kvgrid_request_duration_seconds_count") {
		t.Error("expected kvgrid_request_duration_seconds_count")
	}
}

func TestMigrationMetrics(t *testing.T) {
	r := NewRegistry()

	r.IncMigrationsActive()
	r.IncMigrationsActive()
	r.DecMigrationsActive()
	r.RecordMigrationOutcome(true)
	r.RecordMigrationOutcome(false)

	body := scrape(t, r.Handler())

	if !strings.Contains(body, "kvgrid_migrations_active 1") {
		t.Error("expected kvgrid_migrations_active 1")
	}
	if !strings.Contains(body, "kvgrid_migrations_completed_total 1") {
		t.Error("expected kvgrid_migrations_completed_total 1")
	}
	if !strings.Contains(body, "kvgrid_migrations_failed_total 1") {
		t.Error("expected kvgrid_migrations_failed_total 1")
	}
}

func TestStorageAndClusterGauges(t *testing.T) {
	r := NewRegistry()

	r.SetPartitionsOwned(4)
	r.SetStorageBytes(1048576)
	r.SetClusterNodes(3)

	body := scrape(t, r.Handler())

	if !strings.Contains(body, "kvgrid_partitions_owned 4") {
		t.Error("expected kvgrid_partitions_owned 4")
	}
	if !strings.Contains(body, "kvgrid_storage_bytes 1.048576e+06") {
		t.Error("expected kvgrid_storage_bytes 1.048576e+06")
	}
	if !strings.Contains(body, "kvgrid_cluster_nodes 3") {
		t.Error("expected kvgrid_cluster_nodes 3")
	}
}

func TestAuthFailureMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordAuthFailure("invalid_key")
	r.RecordAuthFailure("invalid_key")
	r.RecordAuthFailure("expired")

	body := scrape(t, r.Handler())

	if !strings.Contains(body, `kvgrid_auth_failures_total{reason="invalid_key"} 2`) {
		t.Error(`expected kvgrid_auth_failures_total{reason="invalid_key"} 2`)
	}
	if !strings.Contains(body, `kvgrid_auth_failures_total{reason="expired"} 1`) {
		t.Error(`expected kvgrid_auth_failures_total{reason="expired"} 1`)
	}
}

func TestRegistryWithCollector(t *testing.T) {
	r := NewRegistry()
	c := NewCollector(func() uint64 { return 2048 }, func() int { return 7 })
	if err := r.Register(c); err != nil {
		t.Fatalf("Register collector: %v", err)
	}

	body := scrape(t, r.Handler())

	if !strings.Contains(body, "kvgrid_goroutines") {
		t.Error("expected kvgrid_goroutines")
	}
	if !strings.Contains(body, "kvgrid_storage_bytes_sampled 2048") {
		t.Error("expected kvgrid_storage_bytes_sampled 2048")
	}
	if !strings.Contains(body, "kvgrid_partitions_owned_sampled 7") {
		t.Error("expected kvgrid_partitions_owned_sampled 7")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				r.RecordRequest("get", "ok")
				r.ObserveRequestDuration("get", 0.001)
				r.IncMigrationsActive()
				r.DecMigrationsActive()
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	body := scrape(t, r.Handler())
	if !strings.Contains(body, `kvgrid_requests_total{op="get",status="ok"} 1000`) {
		t.Error("expected kvgrid_requests_total for get/ok to reach 1000")
	}
}
