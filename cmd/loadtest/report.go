package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"
)

// scenarioStep учитывает сценарий целиком; в Steps отчёта не попадает.
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
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

// tally — счётчики одного шага; задержки в миллисекундах.
type tally struct {
	failed   int64
	statuses map[string]int64
	samples  []float64
}

func (t *tally) calls() int64 { return int64(len(t.samples)) }

func (t *tally) toReport() stepReport {
	calls := t.calls()
	return stepReport{
		Calls:     calls,
		Success:   calls - t.failed,
		Failed:    t.failed,
		ErrorRate: share(t.failed, calls),
		Statuses:  maps.Clone(t.statuses),
		LatencyMs: buildLatencySummary(t.samples),
	}
}

// collector копит задержки и коды ответов по шагам сценария.
type collector struct {
	mu     sync.Mutex
	byStep map[string]*tally
}

func newCollector() *collector {
	return &collector{byStep: make(map[string]*tally)}
}

// record учитывает вызов; status 0 означает сетевую ошибку или таймаут.
func (c *collector) record(step string, latency time.Duration, status int, ok bool) {
	label := "transport_error"
	if status != 0 {
		label = strconv.Itoa(status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.byStep[step]
	if t == nil {
		t = &tally{statuses: make(map[string]int64)}
		c.byStep[step] = t
	}
	if !ok {
		t.failed++
	}
	t.statuses[label]++
	t.samples = append(t.samples, float64(latency)/float64(time.Millisecond))
}

func (c *collector) snapshot(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Steps:           make(map[string]stepReport, len(c.byStep)),
	}
	for name, t := range c.byStep {
		if name != scenarioStep {
			out.Steps[name] = t.toReport()
			continue
		}
		whole := t.toReport()
		out.TotalScenarios = whole.Calls
		out.SuccessScenarios = whole.Success
		out.FailedScenarios = whole.Failed
		out.ErrorRate = whole.ErrorRate
		out.ScenarioLatencyMs = whole.LatencyMs
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

// writeJSONReport пишет отчёт только внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	root, err := os.OpenRoot(".")
	if err != nil {
		return err
	}
	defer root.Close()

	file, err := root.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f duration=%.2fs rps=%.2f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios,
		result.ErrorRate, result.DurationSeconds, result.RPS)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "STEP\tCALLS\tFAILED\tP50 MS\tP95 MS\tP99 MS\tMAX MS\t")
	row := func(name string, calls, failed int64, l latencySummary) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t\n", name, calls, failed, l.P50, l.P95, l.P99, l.Max)
	}
	row(scenarioStep, result.TotalScenarios, result.FailedScenarios, result.ScenarioLatencyMs)
	for _, name := range slices.Sorted(maps.Keys(result.Steps)) {
		s := result.Steps[name]
		row(name, s.Calls, s.Failed, s.LatencyMs)
	}
	_ = tw.Flush()
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return "count:" + strconv.Itoa(cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return "duration:" + cfg.duration.String()
	}
}

func buildLatencySummary(samples []float64) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

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

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := p / 100 * float64(n-1)
	i := int(pos)
	if i >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

func share(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
