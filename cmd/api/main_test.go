package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		IdempotencyBackend:     "memory",
		IDMaxAttempts:          10,
		OverlapClusterMode:     "pairwise",
		MaxAppointmentsPerSlot: 3,
		SeedSampleData:         true,
		RetryMaxAttempts:       2,
		RetryBaseDelay:         time.Millisecond,
		SnapshotInterval:       time.Minute,
	}
}

func TestBuildApplicationServesSeededAppointments(t *testing.T) {
	app, err := buildApplication(context.Background(), testConfig(), logging.New("error"), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Data []appointments.Appointment `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 12 {
		t.Fatalf("expected 12 seeded appointments, got %d", len(resp.Data))
	}

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors to be registered")
	}
}

func TestBuildApplicationWithoutSeed(t *testing.T) {
	cfg := testConfig()
	cfg.SeedSampleData = false
	app, err := buildApplication(context.Background(), cfg, logging.New("error"), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if got := len(app.store.Snapshot(context.Background())); got != 0 {
		t.Fatalf("expected empty store, got %d", got)
	}
}

func TestBuildApplicationUsesRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.IdempotencyBackend = "redis"
	cfg.SeedSampleData = false
	cfg.RateLimitRPS = 100
	cfg.RateLimitBurst = 100

	app, err := buildApplication(context.Background(), cfg, logging.New("error"), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	body := []byte(`{"patientName":"A","date":"2030-05-01","time":"09:00","duration":30,"doctorName":"Dr. X","mode":"online"}`)
	var ids []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewReader(body))
		req.Header.Set(appointments.IdempotencyHeader, "retry-1")
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d: %s", i, rr.Code, rr.Body.String())
		}
		var resp struct {
			Data appointments.Appointment `json:"data"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		ids = append(ids, resp.Data.ID)
	}
	if ids[0] != ids[1] {
		t.Fatalf("expected replay to return the same appointment, got %v", ids)
	}
	if keys := mr.Keys(); len(keys) != 1 {
		t.Fatalf("expected one redis ledger key, got %v", keys)
	}

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"redis":"ok"`) {
		t.Fatalf("expected healthy redis check, got %d: %s", rr.Code, rr.Body.String())
	}
}

type stubLoader struct {
	records []appointments.Appointment
	err     error
}

func (s stubLoader) Load(context.Context) ([]appointments.Appointment, error) {
	return s.records, s.err
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	logger := logging.New("error")
	store := appointments.NewStore(appointments.WithLogger(logger))

	if err := restore(ctx, store, stubLoader{err: errors.New("relation does not exist")}, logger); err != nil {
		t.Fatalf("load errors should be skipped, got %v", err)
	}

	records := appointments.SampleAppointments()[:2]
	if err := restore(ctx, store, stubLoader{records: records}, logger); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := len(store.Snapshot(ctx)); got != 2 {
		t.Fatalf("expected 2 restored records, got %d", got)
	}

	bad := []appointments.Appointment{{ID: "apt_x", Time: "25:00"}}
	if err := restore(ctx, store, stubLoader{records: bad}, logger); err == nil {
		t.Fatalf("expected invalid snapshot to be rejected")
	}
}
