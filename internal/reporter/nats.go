package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// NATS publishes terminal job status to a JetStream stream. Each report goes
// to <subject>.<status> so consumers can subscribe to failures alone.
type NATS struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATS connects to the configured NATS server and ensures the status
// stream exists.
func NewNATS(cfg config.NATSConfig) (*NATS, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("nats reporter is disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATS{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
	}

	if err := client.initStream(cfg.Stream); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize status stream: %w", err)
	}

	slog.Info("NATS status reporter initialized",
		"url", cfg.URL,
		"subject", cfg.Subject,
		"stream", cfg.Stream)

	return client, nil
}

func (n *NATS) initStream(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "Terminal job status events from buildflow",
		Subjects:    []string{n.subject + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
	})
	return err
}

// Report publishes the status. Delivery is best-effort: publish failures are
// logged and swallowed so a broken broker never blocks the orchestrator.
func (n *NATS) Report(ctx context.Context, key string, status orchestrator.ReportStatus, detail string) {
	payload := StatusReport{
		Key:        key,
		Status:     string(status),
		Detail:     detail,
		ReportedAt: time.Now(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal status report", logfields.JobKey(key), logfields.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := n.js.Publish(pubCtx, n.subject+"."+string(status), data); err != nil {
		slog.Error("Failed to publish status report",
			logfields.JobKey(key),
			logfields.Status(string(status)),
			logfields.Error(err))
		return
	}

	slog.Debug("Published status report",
		logfields.JobKey(key),
		logfields.Status(string(status)))
}

// Close closes the NATS connection.
func (n *NATS) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
