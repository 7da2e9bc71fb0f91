// Package stats implements C11: a cron-scheduled structured-log stats
// reporter covering the process-wide source and session tables.
package stats

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alxayo/svr/internal/svr/source"
)

// SessionCounter reports the number of connected sessions, satisfied by
// broker.Server.
type SessionCounter interface {
	SessionCount() int
}

// sourceSnapshot captures one source's state for the structured report.
type sourceSnapshot struct {
	Name string `json:"name"`
}

// Reporter logs a structured snapshot of broker state on a cron schedule.
type Reporter struct {
	sources   *source.Registry
	sessions  SessionCounter
	logger    *slog.Logger
	startTime time.Time

	cron *cron.Cron
}

// New constructs a Reporter. schedule is a standard five-field cron
// expression (e.g. "*/5 * * * *" to report every 5 minutes).
func New(sources *source.Registry, sessions SessionCounter, schedule string, logger *slog.Logger) (*Reporter, error) {
	r := &Reporter{
		sources:   sources,
		sessions:  sessions,
		logger:    logger,
		startTime: time.Now(),
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, r.report); err != nil {
		return nil, err
	}
	r.cron = c
	return r, nil
}

// Start begins the cron scheduler in the background.
func (r *Reporter) Start() { r.cron.Start() }

// Stop stops the scheduler and waits for any in-flight report to finish.
func (r *Reporter) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Reporter) report() {
	reaped := r.sources.Reap()
	names := r.sources.List()
	snapshots := make([]sourceSnapshot, 0, len(names))
	for _, n := range names {
		snapshots = append(snapshots, sourceSnapshot{Name: n})
	}
	sourcesJSON, _ := json.Marshal(snapshots)

	attrs := []any{
		"uptime_seconds", int64(time.Since(r.startTime).Seconds()),
		"sources_total", r.sources.Len(),
		"sources_reaped", reaped,
		"sources", json.RawMessage(sourcesJSON),
	}
	if r.sessions != nil {
		attrs = append(attrs, "sessions_total", r.sessions.SessionCount())
	}

	r.logger.Info("svr stats", attrs...)
}
