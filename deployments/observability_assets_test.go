package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

var metricReference = regexp.MustCompile(`dbanalyst_[a-z_]+`)

func TestPrometheusRecordingRulesReferenceRegisteredMetrics(t *testing.T) {
	root := repoRoot(t)
	rules := loadRules(t, filepath.Join(root, "deployments", "observability", "prometheus", "dbanalyst_recording_rules.yaml"))
	registered := registeredMetrics(t, root)

	requiredRecords := map[string]bool{
		"dbanalyst:http_error_rate_5m":        false,
		"dbanalyst:query_latency_seconds_p95": false,
		"dbanalyst:query_error_ratio_15m":     false,
		"dbanalyst:guard_violations_15m":      false,
		"dbanalyst:validation_rejections_15m": false,
		"dbanalyst:llm_error_ratio_15m":       false,
		"dbanalyst:orchestrator_errors_15m":   false,
	}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if _, ok := requiredRecords[rule.Record]; ok {
				requiredRecords[rule.Record] = true
			}
			for _, name := range metricReference.FindAllString(rule.Expr, -1) {
				base := strings.TrimSuffix(name, "_bucket")
				if _, ok := registered[base]; !ok {
					t.Fatalf("record %s references unknown metric %s", rule.Record, name)
				}
			}
		}
	}
	for record, found := range requiredRecords {
		if !found {
			t.Fatalf("recording rules missing record %q", record)
		}
	}
}

func TestPrometheusAlertsUseRecordedSeries(t *testing.T) {
	root := repoRoot(t)
	prometheusDir := filepath.Join(root, "deployments", "observability", "prometheus")
	recordings := loadRules(t, filepath.Join(prometheusDir, "dbanalyst_recording_rules.yaml"))
	alerts := loadRules(t, filepath.Join(prometheusDir, "dbanalyst_rules.yaml"))

	records := map[string]struct{}{}
	for _, group := range recordings.Groups {
		for _, rule := range group.Rules {
			records[rule.Record] = struct{}{}
		}
	}

	requiredAlerts := []string{
		"DBAnalystHTTPErrorRateHigh",
		"DBAnalystQueryLatencyP95High",
		"DBAnalystGuardViolationsDetected",
		"DBAnalystLLMUnavailable",
	}
	seen := map[string]struct{}{}
	recordReference := regexp.MustCompile(`dbanalyst:[a-z0-9_]+`)
	for _, group := range alerts.Groups {
		for _, rule := range group.Rules {
			seen[rule.Alert] = struct{}{}
			if rule.Labels["severity"] != "warning" && rule.Labels["severity"] != "critical" {
				t.Fatalf("alert %s has severity %q", rule.Alert, rule.Labels["severity"])
			}
			for _, name := range recordReference.FindAllString(rule.Expr, -1) {
				if _, ok := records[name]; !ok {
					t.Fatalf("alert %s references unknown record %s", rule.Alert, name)
				}
			}
		}
	}
	for _, alertName := range requiredAlerts {
		if _, ok := seen[alertName]; !ok {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	var config struct {
		RuleFiles     []string `yaml:"rule_files"`
		ScrapeConfigs []struct {
			JobName     string `yaml:"job_name"`
			MetricsPath string `yaml:"metrics_path"`
		} `yaml:"scrape_configs"`
	}
	if err := yaml.Unmarshal(content, &config); err != nil {
		t.Fatalf("scrape example parse error: %v", err)
	}
	if len(config.ScrapeConfigs) != 1 || config.ScrapeConfigs[0].JobName != "dbanalyst-api" {
		t.Fatalf("scrape configs = %#v", config.ScrapeConfigs)
	}
	if config.ScrapeConfigs[0].MetricsPath != "/v1/metrics" {
		t.Fatalf("metrics_path = %q", config.ScrapeConfigs[0].MetricsPath)
	}
	if strings.Join(config.RuleFiles, ",") != "dbanalyst_recording_rules.yaml,dbanalyst_rules.yaml" {
		t.Fatalf("rule_files = %v", config.RuleFiles)
	}
}

func loadRules(t *testing.T, path string) ruleFile {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(content, &rules); err != nil {
		t.Fatalf("rules parse error: %v", err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", path)
	}
	return rules
}

// registeredMetrics collects the metric names declared in the observability
// package source.
func registeredMetrics(t *testing.T, root string) map[string]struct{} {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(root, "internal", "observability", "*metrics.go"))
	if err != nil || len(files) == 0 {
		t.Fatalf("metric sources not found: %v", err)
	}
	declared := regexp.MustCompile(`Name:\s+"(dbanalyst_[a-z_]+)"`)
	names := map[string]struct{}{}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		for _, match := range declared.FindAllStringSubmatch(string(content), -1) {
			names[match[1]] = struct{}{}
		}
	}
	return names
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
