// Package worker runs background jobs dispatched over NATS.
package worker

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/service"
)

// ExportWorker consumes bulk-export jobs and builds submission archives. Jobs
// are fire-and-forget from the enqueuing request's point of view; failures are
// only observable through archive freshness.
type ExportWorker struct {
	conn    *nats.Conn
	subject string
	exports service.ExportService
	logger  zerolog.Logger
	sub     *nats.Subscription
}

// NewExportWorker constructs the worker.
func NewExportWorker(conn *nats.Conn, subject string, exports service.ExportService, logger zerolog.Logger) *ExportWorker {
	return &ExportWorker{
		conn:    conn,
		subject: subject,
		exports: exports,
		logger:  logger.With().Str("component", "export_worker").Logger(),
	}
}

// Start subscribes to the export subject. Instances share a queue group so a
// job is handled by exactly one worker.
func (w *ExportWorker) Start() error {
	sub, err := w.conn.QueueSubscribe(w.subject, "sga-export-workers", func(msg *nats.Msg) {
		var job dto.ExportJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.logger.Error().Err(err).Msg("discarding malformed export job")
			return
		}

		w.logger.Info().
			Str("block", job.BlockID).
			Str("requester", job.Requester).
			Msg("export job received")

		if err := w.exports.Run(context.Background(), job); err != nil {
			w.logger.Error().Err(err).
				Str("block", job.BlockID).
				Str("requester", job.Requester).
				Msg("export job failed")
		}
	})
	if err != nil {
		return err
	}

	w.sub = sub
	return nil
}

// Stop unsubscribes from the export subject.
func (w *ExportWorker) Stop() {
	if w.sub != nil {
		if err := w.sub.Unsubscribe(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to unsubscribe export worker")
		}
	}
}
