// stats prints a tenant's security event statistics as JSON.
// go run ./cmd/stats -tenant <id> [-days 7]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"sessionguard/internal/app"
	"sessionguard/internal/config"
)

func main() {
	tenant := flag.String("tenant", "", "Tenant id (required)")
	days := flag.Int("days", 7, "Trailing days to aggregate")
	flag.Parse()
	if *tenant == "" {
		fmt.Fprintln(os.Stderr, "stats: -tenant is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, os.Stderr)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close(ctx) }()

	if err := writeStats(ctx, os.Stdout, a, *tenant, *days); err != nil {
		logger.Error("stats: encode", slog.Any("error", err))
	}
}

func writeStats(ctx context.Context, w io.Writer, a *app.App, tenant string, days int) error {
	st := a.Monitor.GetSecurityStatistics(ctx, tenant, days)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"tenant_id":      tenant,
		"days":           days,
		"total_events":   st.TotalEvents,
		"events_by_type": st.EventsByType,
		"events_by_day":  st.EventsByDay,
	})
}
