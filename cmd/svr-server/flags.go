package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// broker.Config so main.go can validate and map.
type cliConfig struct {
	listenAddr     string
	logLevel       string
	workerPoolSize int
	outboxCapacity int
	sourceDir      string
	statsSchedule  string
	showVersion    bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("svr-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.listenAddr, "listen", ":9575", "TCP listen address (e.g. :9575 or 0.0.0.0:9575)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.IntVar(&cfg.workerPoolSize, "worker-pool-size", 16, "Maximum concurrent handler executions")
	fs.IntVar(&cfg.outboxCapacity, "outbox-capacity", 256, "Per-client outbox queue capacity")
	fs.StringVar(&cfg.sourceDir, "source-dir", "", "Directory of YAML server-source descriptors (empty=disabled)")
	fs.StringVar(&cfg.statsSchedule, "stats-schedule", "*/5 * * * *", "Cron schedule for periodic stats logging")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.workerPoolSize < 1 {
		return nil, errors.New("worker-pool-size must be at least 1")
	}
	if cfg.outboxCapacity < 1 {
		return nil, errors.New("outbox-capacity must be at least 1")
	}

	return cfg, nil
}
