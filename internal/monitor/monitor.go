// Package monitor delivers sync progress snapshots to external sinks
// (dashboards, alerting). Sinks are observe-only: nothing in the sync core
// reads back from them, and a failing sink must never fail a sync.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

// PageReport is the counter snapshot published after every processed page
// and once more when the session reaches a terminal state.
type PageReport struct {
	SessionID       string               `json:"session_id"`
	SourceAccountID string               `json:"source_account_id"`
	SyncType        models.SyncType      `json:"sync_type"`
	Status          models.SessionStatus `json:"status"`
	Counters        models.SyncCounters  `json:"counters"`
	ReportedAt      time.Time            `json:"reported_at"`
}

// Sink receives page reports.
type Sink interface {
	PageCompleted(ctx context.Context, report PageReport)
}

// LogSink writes reports to the structured log.
type LogSink struct{}

// PageCompleted implements Sink.
func (LogSink) PageCompleted(_ context.Context, report PageReport) {
	log.Info().
		Str("sessionID", report.SessionID).
		Str("accountID", report.SourceAccountID).
		Str("status", string(report.Status)).
		Int("processed", report.Counters.MessagesProcessed).
		Int("created", report.Counters.CustomersCreated).
		Int("duplicatesSkipped", report.Counters.DuplicatesSkipped).
		Int("errors", report.Counters.ErrorsEncountered).
		Msg("Sync page completed")
}

// MultiSink fans a report out to every configured sink in parallel and
// waits for all of them before returning, so a slow dashboard cannot stall
// the batch loop longer than its own delivery.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a fan-out over the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// PageCompleted implements Sink.
func (m *MultiSink) PageCompleted(ctx context.Context, report PageReport) {
	var wg sync.WaitGroup
	for _, s := range m.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			s.PageCompleted(ctx, report)
		}(s)
	}
	wg.Wait()
}
