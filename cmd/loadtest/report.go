package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
)

// scenarioStep — имя служебной записи со сквозной латентностью сценария.
const scenarioStep = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time             `json:"started_at"`
	DurationSeconds float64               `json:"duration_seconds"`
	Scenarios       int64                 `json:"scenarios"`
	Failed          int64                 `json:"failed"`
	ErrorRate       float64               `json:"error_rate"`
	RPS             float64               `json:"rps"`
	Steps           map[string]stepReport `json:"steps"`
}

type stepSamples struct {
	failed    int64
	codes     map[string]int64
	latencies []float64
}

// recorder собирает латентности и коды ответов по шагам сценария.
type recorder struct {
	mu    sync.Mutex
	steps map[string]*stepSamples
}

func newRecorder() *recorder {
	return &recorder{steps: make(map[string]*stepSamples)}
}

func (r *recorder) observe(step string, latency time.Duration, code codes.Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples, ok := r.steps[step]
	if !ok {
		samples = &stepSamples{codes: make(map[string]int64)}
		r.steps[step] = samples
	}
	if code != codes.OK {
		samples.failed++
	}
	samples.codes[code.String()]++
	samples.latencies = append(samples.latencies, float64(latency.Microseconds())/1000.0)
}

func (r *recorder) build(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Steps:           make(map[string]stepReport, len(r.steps)),
	}
	for name, samples := range r.steps {
		calls := int64(len(samples.latencies))
		codesCopy := make(map[string]int64, len(samples.codes))
		for code, n := range samples.codes {
			codesCopy[code] = n
		}
		result.Steps[name] = stepReport{
			Calls:     calls,
			Failed:    samples.failed,
			ErrorRate: ratio(samples.failed, calls),
			Codes:     codesCopy,
			LatencyMs: summarize(samples.latencies),
		}
	}

	if scenario, ok := result.Steps[scenarioStep]; ok {
		result.Scenarios = scenario.Calls
		result.Failed = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
	}
	if elapsed > 0 {
		result.RPS = float64(result.Scenarios) / elapsed.Seconds()
	}
	return result
}

func summarize(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
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

// percentile интерполирует линейно между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower, upper := int(math.Floor(rank)), int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся флагом CLI для локального отчёта.
	file, err := os.Create(clean)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, mode loadMode) {
	_, _ = fmt.Fprintf(w, "wholesale load test: mode=%s scenarios=%d failed=%d error_rate=%.4f\n",
		mode, result.Scenarios, result.Failed, result.ErrorRate)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)

	names := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		step := result.Steps[name]
		_, _ = fmt.Fprintf(w, "%-22s calls=%d failed=%d p50=%.2fms p95=%.2fms p99=%.2fms\n",
			name, step.Calls, step.Failed, step.LatencyMs.P50, step.LatencyMs.P95, step.LatencyMs.P99)
	}
}
