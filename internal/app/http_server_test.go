package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"casetimer/internal/adapter/api"
	"casetimer/internal/adapter/memory"
	"casetimer/internal/config"
	"casetimer/internal/domain"
	"casetimer/internal/ports"
	"casetimer/internal/timer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, tokens ...string) (*httptest.Server, *memory.Repository) {
	t.Helper()
	var cfg config.Config
	cfg.Server.AuthTokens = tokens
	repo := memory.NewRepository()
	a := NewWithRepository(testLogger(), cfg, repo, nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv, repo
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/api/cases/c1/time-tracking")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/cases/c1/time-tracking", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status with token for unknown case = %d", resp.StatusCode)
	}
	var env api.Envelope[api.TimeTracking]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Success || env.Error == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestUpdateRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown stage", "/api/cases/c1/time-tracking/stages/lunch", `{"startTime":"2025-08-01T09:00:00.000Z","endTime":"2025-08-01T09:01:00.000Z"}`, http.StatusBadRequest},
		{"bad json", "/api/cases/c1/time-tracking/stages/intake", `{`, http.StatusBadRequest},
		{"end before start", "/api/cases/c1/time-tracking/stages/intake", `{"startTime":"2025-08-01T09:01:00.000Z","endTime":"2025-08-01T09:00:00.000Z"}`, http.StatusBadRequest},
		{"missing times", "/api/cases/c1/time-tracking/stages/intake", `{}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPut, srv.URL+c.path, strings.NewReader(c.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != c.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, c.status)
			}
		})
	}
}

func TestUpdateWithoutTotalExtendsPrevious(t *testing.T) {
	srv, repo := newTestServer(t)
	put := func(body string) {
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/cases/c1/time-tracking/stages/paperwork", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	}
	put(`{"startTime":"2025-08-01T09:00:00.000Z","endTime":"2025-08-01T09:01:00.000Z"}`)
	put(`{"startTime":"2025-08-01T10:00:00.000Z","endTime":"2025-08-01T10:00:30.000Z","metadata":{"inspectorId":"i-1","inspectorName":"Sam"}}`)

	rec, err := repo.GetTimeTracking(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	st := rec.StageTimes[domain.StagePaperwork]
	if st.TotalTime != 90*time.Second || st.ActorName != "Sam" {
		t.Fatalf("stage = %+v", st)
	}
	if rec.TotalTime != 90*time.Second {
		t.Fatalf("case total = %v", rec.TotalTime)
	}
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// A timer talking to the real handler over HTTP: two page loads, one per session.
func TestStageTimerRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	var cfg config.Config
	cfg.API.BaseURL = srv.URL
	cfg.API.Token = "secret"
	cfg.Timer.TickInterval = time.Hour
	cfg.Timer.ActorID, cfg.Timer.ActorName = "i-9", "Alex"

	t0 := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := &steppingClock{now: t0}
	var failures []timer.Op
	ctx := context.Background()

	first := NewStageTimer(ctx, testLogger(), cfg, "case-7", domain.StageInspection,
		timer.WithClock(clock.Now),
		timer.WithErrorHandler(func(op timer.Op, err error) { failures = append(failures, op) }),
	)
	<-first.Loaded()
	first.Start()
	clock.Advance(time.Minute)
	res := first.Stop(ctx)
	first.Close()
	if res.TotalTime != time.Minute {
		t.Fatalf("first session total = %v", res.TotalTime)
	}

	clock.Advance(time.Hour)
	second := NewStageTimer(ctx, testLogger(), cfg, "case-7", domain.StageInspection,
		timer.WithClock(clock.Now),
		timer.WithErrorHandler(func(op timer.Op, err error) { failures = append(failures, op) }),
	)
	defer second.Close()
	<-second.Loaded()
	if second.State() != timer.StateIdle || second.Elapsed() != time.Minute {
		t.Fatalf("reloaded state=%v elapsed=%v", second.State(), second.Elapsed())
	}
	rec, ok := second.StageRecord()
	if !ok || rec.ActorName != "Alex" {
		t.Fatalf("stage record = %+v", rec)
	}
	second.Start()
	clock.Advance(15 * time.Second)
	res = second.Stop(ctx)
	if res.TotalTime != 75*time.Second || res.NewTime != 15*time.Second || !res.StartTime.Equal(t0) {
		t.Fatalf("second session = %+v", res)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}

	client := api.NewClient(srv.URL, ports.StaticToken("secret"), testLogger())
	got, err := client.FetchTimeTracking(ctx, "case-7")
	if err != nil {
		t.Fatal(err)
	}
	st := got.StageTimes[domain.StageInspection]
	if st.TotalTime != 75*time.Second || st.StartTime == nil || !st.StartTime.Equal(t0) {
		t.Fatalf("persisted stage = %+v", st)
	}
}

func TestStageTimerSurvivesBackendDown(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Close()

	var cfg config.Config
	cfg.API.BaseURL = srv.URL
	cfg.API.Token = "x"
	cfg.Timer.TickInterval = time.Hour
	var ops []timer.Op
	var mu sync.Mutex
	tm := NewStageTimer(context.Background(), testLogger(), cfg, "case-1", domain.StageIntake,
		timer.WithErrorHandler(func(op timer.Op, err error) {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		}),
	)
	defer tm.Close()
	<-tm.Loaded()
	tm.Start()
	res := tm.Stop(context.Background())
	if res.EndTime.Before(res.StartTime) {
		t.Fatalf("incoherent timing: %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ops) != 2 || ops[0] != timer.OpLoad || ops[1] != timer.OpSave {
		t.Fatalf("failures = %v", ops)
	}
}

func TestStageTimerWithoutTokenAgainstOpenServer(t *testing.T) {
	srv, repo := newTestServer(t)
	var cfg config.Config
	cfg.API.BaseURL = srv.URL
	cfg.Timer.TickInterval = time.Hour

	clock := &steppingClock{now: time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)}
	var failures []timer.Op
	tm := NewStageTimer(context.Background(), testLogger(), cfg, "case-2", domain.StageIntake,
		timer.WithClock(clock.Now),
		timer.WithErrorHandler(func(op timer.Op, err error) { failures = append(failures, op) }),
	)
	defer tm.Close()
	<-tm.Loaded()
	tm.Start()
	clock.Advance(30 * time.Second)
	tm.Stop(context.Background())

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	rec, err := repo.GetTimeTracking(context.Background(), "case-2")
	if err != nil {
		t.Fatal(err)
	}
	if st := rec.StageTimes[domain.StageIntake]; st.TotalTime != 30*time.Second {
		t.Fatalf("stage = %+v", st)
	}
}
