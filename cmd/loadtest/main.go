package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type loadMode string

const (
	modeBook       loadMode = "book"
	modeBookSearch loadMode = "book-search"
)

const (
	scenarioMethod = "scenario"
	bookMethod     = "PlaceOrder"
	searchMethod   = "Search"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	lessonID    string
	spaces      int
	namePrefix  string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// capacityReport - проверка отсутствия овербукинга по целевому уроку.
type capacityReport struct {
	LessonID      string `json:"lesson_id"`
	InitialSpaces int    `json:"initial_spaces"`
	FinalSpaces   int    `json:"final_spaces"`
	BookedSpaces  int64  `json:"booked_spaces"`
	Conflicts     int64  `json:"conflicts"`
	Consistent    bool   `json:"consistent"`
}

type report struct {
	RunID             string                  `json:"run_id"`
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Capacity          capacityReport          `json:"capacity"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

// record учитывает вызов; ok - ожидаемый ли это исход, code - HTTP-статус или метка ошибки.
func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) count(method, code string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stats, ok := c.methods[method]; ok {
		return stats.codes[code]
	}
	return 0
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenario := c.methods[scenarioMethod]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, n := range stats.codes {
			codesCopy[code] = n
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "lesson service base URL")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeBook), "load mode: book | book-search")
	fs.StringVar(&cfg.lessonID, "lesson", "", "lesson id to book (default: the lesson with most free spaces)")
	fs.IntVar(&cfg.spaces, "spaces", 1, "spaces per order")
	fs.StringVar(&cfg.namePrefix, "name-prefix", "load", "customer name prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.spaces <= 0 {
		return cfg, errors.New("spaces must be > 0")
	}
	if strings.TrimSpace(cfg.namePrefix) == "" {
		return cfg, errors.New("name-prefix is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeBook:
		return modeBook, nil
	case modeBookSearch:
		return modeBookSearch, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := newAPIClient(cfg.baseURL, &http.Client{Timeout: cfg.timeout})
	result, err := run(context.Background(), cfg, client)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || !result.Capacity.Consistent {
		os.Exit(1)
	}
}

// run бронирует целевой урок параллельно и сверяет итоговую вместимость.
func run(ctx context.Context, cfg config, client *apiClient) (report, error) {
	target, err := client.pickLesson(ctx, cfg.lessonID)
	if err != nil {
		return report{}, err
	}

	startedAt := time.Now()
	runID := uuid.NewString()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, client, cfg, target, id, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.RunID = runID

	final, err := client.lesson(ctx, target.ID)
	if err != nil {
		return result, fmt.Errorf("read final capacity: %w", err)
	}
	booked := col.count(bookMethod, strconv.Itoa(http.StatusCreated)) * int64(cfg.spaces)
	result.Capacity = capacityReport{
		LessonID:      target.ID,
		InitialSpaces: target.Spaces,
		FinalSpaces:   final.Spaces,
		BookedSpaces:  booked,
		Conflicts:     col.count(bookMethod, strconv.Itoa(http.StatusConflict)),
		Consistent:    final.Spaces >= 0 && int64(target.Spaces)-booked == int64(final.Spaces),
	}
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario выполняет бронирование (и поиск в режиме book-search).
// 409 - ожидаемый исход, когда места закончились.
func runScenario(ctx context.Context, client *apiClient, cfg config, target lessonView, index int, runID string, col *collector) {
	start := time.Now()
	ok := true
	code := "ok"
	defer func() {
		col.record(scenarioMethod, time.Since(start), code, ok)
	}()

	if cfg.mode == modeBookSearch {
		searchStart := time.Now()
		status, err := client.search(ctx, target.Subject)
		searchCode, searchOK := outcome(status, err, http.StatusOK)
		col.record(searchMethod, time.Since(searchStart), searchCode, searchOK)
		if !searchOK {
			ok, code = false, searchCode
			return
		}
	}

	req := orderRequest{
		Name:      fmt.Sprintf("%s-%d", cfg.namePrefix, index),
		Phone:     fmt.Sprintf("07%09d", index),
		LessonIDs: []string{target.ID},
		Spaces:    []int{cfg.spaces},
	}
	bookStart := time.Now()
	status, err := client.placeOrder(ctx, req, fmt.Sprintf("lt-%s-%d", runID, index))
	bookCode, bookOK := outcome(status, err, http.StatusCreated, http.StatusConflict)
	col.record(bookMethod, time.Since(bookStart), bookCode, bookOK)
	if !bookOK {
		ok, code = false, bookCode
	}
}

func outcome(status int, err error, expected ...int) (string, bool) {
	if err != nil {
		return "transport_error", false
	}
	for _, want := range expected {
		if status == want {
			return strconv.Itoa(status), true
		}
	}
	return strconv.Itoa(status), false
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == scenarioMethod {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}

	c := result.Capacity
	verdict := "OK"
	if !c.Consistent {
		verdict = "OVERSOLD"
	}
	_, _ = fmt.Fprintf(w, "capacity lesson=%s initial=%d booked=%d conflicts=%d final=%d: %s\n",
		c.LessonID, c.InitialSpaces, c.BookedSpaces, c.Conflicts, c.FinalSpaces, verdict)
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
