package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dbanalyst/dbanalyst/internal/cli/dbanalystctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("DBANALYST_CLI_TIMEOUT")), 30*time.Second)
	options := dbanalystctl.Options{
		BaseURL:  envOr("DBANALYST_API_URL", "http://localhost:8080"),
		APIKey:   strings.TrimSpace(os.Getenv("DBANALYST_API_KEY")),
		TenantID: strings.TrimSpace(os.Getenv("DBANALYST_TENANT_ID")),
		Timeout:  timeout,
		Output:   envOr("DBANALYST_CLI_OUTPUT", dbanalystctl.OutputJSON),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := dbanalystctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid DBANALYST_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
