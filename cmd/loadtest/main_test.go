package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/booking"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/catalog"
	"github.com/vladislavdragonenkov/lessonbook/internal/storage/memory"
	transport "github.com/vladislavdragonenkov/lessonbook/internal/transport/http"
)

func newTestServer(t *testing.T, lessons []domain.Lesson) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	store := memory.NewStore()
	repo := memory.NewLessonRepository(store)
	if _, err := repo.ReplaceAll(context.Background(), lessons); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := prometheus.NewRegistry()
	router, err := transport.NewRouter(transport.Config{
		RateLimitMax:    100000,
		RateLimitWindow: time.Minute,
	}, transport.Deps{
		Catalog:     catalog.NewService(repo, entry),
		Booker:      booking.NewService(memory.NewUnitOfWork(store), booking.WithLogger(entry), booking.WithMetrics(metrics.NewBookingMetrics(reg))),
		Idempotency: memory.NewIdempotencyRepository(),
		Metrics:     metrics.NewHTTPMetrics(reg),
		Logger:      entry,
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseMode(t *testing.T) {
	for _, value := range []string{"book", " book-search "} {
		if _, err := parseMode(value); err != nil {
			t.Fatalf("parseMode(%q): %v", value, err)
		}
	}
	if _, err := parseMode("create-pay"); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-url=http://host:3000/", "-concurrency=4", "-spaces=2", "-mode=book-search"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.baseURL != "http://host:3000" {
		t.Fatalf("trailing slash must be trimmed, got %q", cfg.baseURL)
	}
	if cfg.total != 200 || cfg.totalSet {
		t.Fatalf("unexpected total %d (set=%v)", cfg.total, cfg.totalSet)
	}
	if cfg.concurrency != 4 || cfg.spaces != 2 || cfg.mode != modeBookSearch {
		t.Fatalf("unexpected config %+v", cfg)
	}

	invalid := [][]string{
		{"-total=0"},
		{"-concurrency=0"},
		{"-spaces=0"},
		{"-timeout=0s"},
		{"-duration=-1s"},
		{"-duration=1s", "-total=0"},
		{"-name-prefix= "},
		{"-mode=unknown"},
		{"-unknown-flag"},
	}
	for _, args := range invalid {
		if _, err := parseConfig(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 5})
	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 5 || got[4] != 4 {
		t.Fatalf("unexpected jobs %v", got)
	}

	limited := make(chan int, 10)
	dispatchJobs(limited, config{duration: time.Second, total: 3, totalSet: true})
	n := 0
	for range limited {
		n++
	}
	if n != 3 {
		t.Fatalf("expected total to cap duration run, got %d", n)
	}
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record(bookMethod, 10*time.Millisecond, "201", true)
	col.record(bookMethod, 20*time.Millisecond, "409", true)
	col.record(bookMethod, 30*time.Millisecond, "500", false)
	col.record(scenarioMethod, 10*time.Millisecond, "ok", true)
	col.record(scenarioMethod, 30*time.Millisecond, "500", false)

	if col.count(bookMethod, "409") != 1 || col.count(searchMethod, "200") != 0 {
		t.Fatal("unexpected counts")
	}

	result := col.buildReport(time.Now(), 2*time.Second)
	if result.TotalScenarios != 2 || result.FailedScenarios != 1 || result.ErrorRate != 0.5 {
		t.Fatalf("unexpected scenario stats %+v", result)
	}
	if result.RPS != 1 {
		t.Fatalf("unexpected rps %f", result.RPS)
	}
	book := result.Methods[bookMethod]
	if book.Calls != 3 || book.Codes["201"] != 1 || book.LatencyMs.Max != 30 {
		t.Fatalf("unexpected method report %+v", book)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if percentile([]float64{1, 2, 3, 4}, 50) != 2.5 {
		t.Fatal("unexpected interpolated percentile")
	}
	if percentile(nil, 99) != 0 || percentile([]float64{7}, 99) != 7 {
		t.Fatal("unexpected edge percentile")
	}
	if ratio(1, 0) != 0 || ratio(1, 4) != 0.25 {
		t.Fatal("unexpected ratio")
	}
	if code, ok := outcome(409, nil, 201, 409); !ok || code != "409" {
		t.Fatalf("409 must be expected, got %s %v", code, ok)
	}
	if code, ok := outcome(0, io.ErrUnexpectedEOF, 201); ok || code != "transport_error" {
		t.Fatalf("unexpected transport outcome %s %v", code, ok)
	}
	if runTarget(config{total: 5}) != "count:5" {
		t.Fatal("unexpected count target")
	}
	if runTarget(config{duration: time.Minute, total: 5, totalSet: true}) != "duration:1m0s,max-total:5" {
		t.Fatal("unexpected duration target")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()

	if err := writeJSONReport("report.json", report{RunID: "r1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil || decoded.RunID != "r1" {
		t.Fatalf("unexpected report %s (%v)", data, err)
	}

	if err := writeJSONReport("../escape.json", report{}); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
	if err := writeJSONReport(".", report{}); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestRunDoesNotOversell(t *testing.T) {
	srv := newTestServer(t, []domain.Lesson{
		{Subject: "Math", Location: "London", Price: 100, Spaces: 7},
		{Subject: "Art", Location: "Bristol", Price: 80, Spaces: 3},
	})

	cfg := config{
		baseURL:     srv.URL,
		total:       30,
		concurrency: 10,
		timeout:     5 * time.Second,
		mode:        modeBookSearch,
		spaces:      2,
		namePrefix:  "load",
	}
	result, err := run(context.Background(), cfg, newAPIClient(srv.URL, srv.Client()))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	c := result.Capacity
	if !c.Consistent {
		t.Fatalf("capacity inconsistent: %+v", c)
	}
	if c.InitialSpaces != 7 || c.BookedSpaces != 6 || c.FinalSpaces != 1 {
		t.Fatalf("expected 3 orders of 2 spaces out of 7, got %+v", c)
	}
	if c.Conflicts != 27 {
		t.Fatalf("expected 27 conflicts, got %d", c.Conflicts)
	}
	if result.FailedScenarios != 0 || result.TotalScenarios != 30 {
		t.Fatalf("unexpected scenario stats %+v", result)
	}
	if result.Methods[searchMethod].Calls != 30 {
		t.Fatalf("expected a search per scenario, got %+v", result.Methods[searchMethod])
	}

	var out bytes.Buffer
	printReport(&out, result, cfg)
	if !strings.Contains(out.String(), "final=1: OK") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}
}

func TestRunWithUnknownLesson(t *testing.T) {
	srv := newTestServer(t, []domain.Lesson{{Subject: "Math", Location: "London", Spaces: 1}})

	_, err := run(context.Background(), config{lessonID: domain.NewID(), total: 1, concurrency: 1, spaces: 1, namePrefix: "x"},
		newAPIClient(srv.URL, srv.Client()))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestPickLessonOnEmptyCatalog(t *testing.T) {
	srv := newTestServer(t, nil)
	_, err := newAPIClient(srv.URL, srv.Client()).pickLesson(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty catalog")
	}

	down := httptest.NewServer(http.NotFoundHandler())
	defer down.Close()
	if _, err := newAPIClient(down.URL, down.Client()).lessons(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
