// Package metrics exposes Prometheus counters and gauges for the judging
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ActiveRuns tracks diff runs currently executing (start or rerun).
	ActiveRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "diffrun",
		Name:      "active_runs",
		Help:      "Number of diff runs currently executing.",
	})

	// TestCasesTotal counts persisted TestCases by verdict status.
	TestCasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diffrun",
		Name:      "test_cases_total",
		Help:      "Total TestCases judged, labeled by status.",
	}, []string{"status"})

	// CompileFailuresTotal counts compile failures by stage label
	// ("user", "reference", "generator").
	CompileFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diffrun",
		Name:      "compile_failures_total",
		Help:      "Total compile failures, labeled by code stage.",
	}, []string{"stage"})

	// SandboxLaunchesTotal counts Sandbox Launcher invocations by verdict.
	SandboxLaunchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diffrun",
		Name:      "sandbox_launches_total",
		Help:      "Total sandbox launches, labeled by verdict kind.",
	}, []string{"verdict"})
)

// Register adds all collectors to reg. Call once at startup.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(ActiveRuns, TestCasesTotal, CompileFailuresTotal, SandboxLaunchesTotal)
}
