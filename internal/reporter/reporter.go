// Package reporter delivers terminal job status to the systems of record.
// All implementations are best-effort from the orchestrator's perspective:
// a failed report is logged and dropped, never retried.
package reporter

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// StatusReport is the wire payload published for a terminal job status.
type StatusReport struct {
	Key        string    `json:"key"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// Log reports job status to the process log. It is the default reporter and
// the fallback when no external transport is configured.
type Log struct{}

func (Log) Report(_ context.Context, key string, status orchestrator.ReportStatus, detail string) {
	if status == orchestrator.StatusFailed {
		slog.Error("Job status reported",
			logfields.JobKey(key),
			logfields.Status(string(status)),
			slog.String("detail", detail))
		return
	}
	slog.Info("Job status reported",
		logfields.JobKey(key),
		logfields.Status(string(status)))
}

// Multi fans a report out to several reporters.
type Multi []orchestrator.Reporter

func (m Multi) Report(ctx context.Context, key string, status orchestrator.ReportStatus, detail string) {
	for _, r := range m {
		r.Report(ctx, key, status, detail)
	}
}
