// Command entitymap is an operator tool for the entitymap persistence layer.
//
// Usage:
//
//	entitymap [flags] validate   check the configuration and exit
//	entitymap [flags] kinds      list the storage engines linked into the binary
//	entitymap [flags] ensure     create the demo tables
//	entitymap [flags] demo       run a save/find/stream/delete round trip
//
// Configuration comes from -config (JSON or YAML) and ENTITYMAP_* variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"entitymap"
	"entitymap/internal/config"
	"entitymap/internal/logging"
	"entitymap/internal/metrics"
	"entitymap/internal/metrics/datadog"
	"entitymap/internal/metrics/prompush"
	"entitymap/storage"

	// register all engines with the storage factory.
	// config specifies which to use but the binary carries all of them.
	_ "entitymap/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	cfgPath           string
	metricsBackendFlg string
	pushGatewayURLFlg string
	force             bool
	rows              int
	batch             int
}

var commands = map[string]bool{"validate": true, "kinds": true, "ensure": true, "demo": true}

// run executes one command and returns the process exit code: 0 on success,
// 1 on failure, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("entitymap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.cfgPath, "config", "", "config file path (.json, .yaml or .yml); empty reads ENTITYMAP_* variables only")
	fs.StringVar(&o.metricsBackendFlg, "metrics-backend", "", "metrics backend override (prometheus, datadog, none)")
	fs.StringVar(&o.pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL override")
	fs.BoolVar(&o.force, "force", false, "drop and re-create tables before use")
	fs.IntVar(&o.rows, "rows", 1000, "demo: number of audit events to stream")
	fs.IntVar(&o.batch, "batch", 250, "demo: InsertStream batch size")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: entitymap [flags] validate|kinds|ensure|demo\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cmd := fs.Arg(0)
	if !commands[cmd] || fs.NArg() > 1 {
		fs.Usage()
		return 2
	}

	if cmd == "kinds" {
		fmt.Fprintln(stdout, strings.Join(storage.ListKinds(), "\n"))
		return 0
	}

	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if o.metricsBackendFlg != "" {
		cfg.Metrics.Backend = o.metricsBackendFlg
	}
	if o.pushGatewayURLFlg != "" {
		cfg.Metrics.PushgatewayURL = o.pushGatewayURLFlg
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid\n")
		return 1
	}
	if cmd == "validate" {
		fmt.Fprintf(stdout, "configuration is valid\n")
		return 0
	}

	logger, closeLog := logging.Setup(stderr, cfg.Logging)
	defer closeLog()

	flush := setupMetrics(cfg.Metrics, logger)
	defer flush()

	db := entitymap.Open(cfg.Storage.Supplier(),
		entitymap.WithLogger(logger),
		entitymap.WithAutoCreate(cfg.Schema.AutoCreate))
	defer db.Close()

	start := time.Now()
	switch cmd {
	case "ensure":
		err = ensureTables(ctx, db, o.force)
		if err == nil {
			fmt.Fprintf(stdout, "tables ready on %s\n", cfg.Storage.Kind)
		}
	case "demo":
		err = demo(ctx, db, stdout, o)
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "kind", cfg.Storage.Kind, "error", err)
		return 1
	}
	logger.Info("command completed", "command", cmd, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return 0
}

// setupMetrics installs the configured backend and returns its flush func.
func setupMetrics(m config.MetricsConfig, logger *slog.Logger) func() {
	var b metrics.Backend
	switch m.Backend {
	case "prometheus":
		pb, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			logger.Warn("metrics: prometheus backend unavailable; metrics disabled", "error", err)
			return func() {}
		}
		b = pb
	case "datadog":
		dd, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: m.Namespace})
		if err != nil {
			logger.Warn("metrics: datadog backend unavailable; metrics disabled", "error", err)
			return func() {}
		}
		b = dd
	default:
		logger.Debug("metrics: disabled", "backend", m.Backend)
		return func() {}
	}

	logger.Info("metrics: enabled", "backend", m.Backend)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics: flush error", "error", err)
		}
	}
}
