package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "asksql_rules.yaml")

	requiredAlerts := []string{
		"AskSQLAskLatencyP95High",
		"AskSQLLLMErrorRateHigh",
		"AskSQLDatabaseErrorsDetected",
		"AskSQLUnsafeSQLSpike",
		"AskSQLHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	// Every alert must be driven by a recording rule.
	records := readAsset(t, "asksql_recording_rules.yaml")
	for _, match := range regexp.MustCompile(`asksql:[a-z0-9_]+`).FindAllString(text, -1) {
		if !strings.Contains(records, "record: "+match) {
			t.Fatalf("alert references unknown record %q", match)
		}
	}
}

func TestPrometheusRecordingRulesUseExportedMetrics(t *testing.T) {
	text := readAsset(t, "asksql_recording_rules.yaml")

	exported := []string{
		"asksql_http_requests_total",
		"asksql_http_request_duration_seconds",
		"asksql_pipeline_runs_total",
		"asksql_llm_call_duration_seconds",
		"asksql_llm_call_errors_total",
		"asksql_sql_rejections_total",
		"asksql_memory_lookups_total",
		"asksql_query_duration_seconds",
	}
	for _, metricName := range exported {
		if !strings.Contains(text, metricName) {
			t.Fatalf("recording rules never use metric %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "prometheus-scrape.example.yaml")

	requiredTokens := []string{
		"metrics_path: /v1/metrics",
		"asksql_rules.yaml",
		"asksql_recording_rules.yaml",
		"job_name: asksql-api",
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func readAsset(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
