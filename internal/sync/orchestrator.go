package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"feedsync/internal/models"
	"feedsync/internal/monitor"
)

// OrchestratorConfig tunes the batch loop. Zero values take defaults.
type OrchestratorConfig struct {
	// PageSize bounds how many messages one provider page may carry.
	PageSize int
	// ErrorBudget is the number of per-message processing errors tolerated
	// per session; one more than this fails the session.
	ErrorBudget int
	// BatchInterval is the fixed delay between page fetches, keeping the
	// loop under provider quotas.
	BatchInterval time.Duration
	// MaxHistoryWindow bounds how far back an initial sync reaches.
	MaxHistoryWindow time.Duration
	// IncrementalLookback is the fallback window for an incremental sync
	// when the account has no completed session yet.
	IncrementalLookback time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.ErrorBudget <= 0 {
		c.ErrorBudget = 5
	}
	if c.MaxHistoryWindow <= 0 {
		c.MaxHistoryWindow = 90 * 24 * time.Hour
	}
	if c.IncrementalLookback <= 0 {
		c.IncrementalLookback = 24 * time.Hour
	}
	return c
}

// StartOptions select the sync mode for one StartSync call. StartTime,
// EndTime and Cursor apply to manual syncs only.
type StartOptions struct {
	SyncType  models.SyncType
	StartTime time.Time
	EndTime   time.Time
	Cursor    string
}

// Progress is a read-only snapshot of one session, safe to hand to
// concurrent pollers while the sync task keeps mutating its own state.
type Progress struct {
	SessionID       string               `json:"session_id"`
	SourceAccountID string               `json:"source_account_id"`
	SyncType        models.SyncType      `json:"sync_type"`
	Status          models.SessionStatus `json:"status"`
	Counters        models.SyncCounters  `json:"counters"`
	LastCursor      string               `json:"last_cursor,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	StartedAt       time.Time            `json:"started_at"`
}

type sessionState struct {
	cancel   context.CancelFunc
	progress Progress
}

// Orchestrator drives paginated feed synchronization: one asynchronous task
// per StartSync call, at most one running task per account. Persisted
// SyncSession rows are the source of truth for resumability; the in-memory
// registry only serves live polling.
type Orchestrator struct {
	cfg      OrchestratorConfig
	source   MessageSource
	pipeline *Pipeline
	sessions SessionStore
	sink     monitor.Sink

	mu      sync.RWMutex
	running map[string]string        // accountID -> running sessionID
	state   map[string]*sessionState // sessionID -> live state
}

// NewOrchestrator wires the batch loop. sink may be nil.
func NewOrchestrator(cfg OrchestratorConfig, source MessageSource, pipeline *Pipeline, sessions SessionStore, sink monitor.Sink) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		source:   source,
		pipeline: pipeline,
		sessions: sessions,
		sink:     sink,
		running:  make(map[string]string),
		state:    make(map[string]*sessionState),
	}
}

// StartSync registers a new session and launches its sync task. It returns
// ErrSyncAlreadyRunning when the account already has a running session.
func (o *Orchestrator) StartSync(ctx context.Context, accountID string, opts StartOptions) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("start sync: account id is empty")
	}
	if opts.SyncType == "" {
		opts.SyncType = models.SyncTypeIncremental
	}
	switch opts.SyncType {
	case models.SyncTypeInitial, models.SyncTypeIncremental, models.SyncTypeManual:
	default:
		return "", fmt.Errorf("start sync: unknown sync type %q", opts.SyncType)
	}

	sessionID := uuid.NewString()
	o.mu.Lock()
	if running, ok := o.running[accountID]; ok {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: account %s, session %s", ErrSyncAlreadyRunning, accountID, running)
	}
	o.running[accountID] = sessionID
	o.mu.Unlock()

	session := &models.SyncSession{
		ID:              sessionID,
		SourceAccountID: accountID,
		SyncType:        opts.SyncType,
		Status:          models.SessionPending,
		StartedAt:       time.Now().UTC(),
	}
	if err := o.sessions.CreateSession(ctx, session); err != nil {
		o.mu.Lock()
		delete(o.running, accountID)
		o.mu.Unlock()
		return "", fmt.Errorf("persist sync session: %w", err)
	}

	// The sync task outlives the caller's request context.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.state[sessionID] = &sessionState{cancel: cancel, progress: snapshot(session)}
	o.mu.Unlock()

	log.Info().
		Str("sessionID", sessionID).
		Str("accountID", accountID).
		Str("syncType", string(opts.SyncType)).
		Msg("Sync session started")
	go o.run(runCtx, session, opts)
	return sessionID, nil
}

// GetProgress returns a snapshot of the session, falling back to the
// persisted row when the session is no longer (or never was) in memory.
// It returns (nil, nil) for an unknown session id.
func (o *Orchestrator) GetProgress(ctx context.Context, sessionID string) (*Progress, error) {
	o.mu.RLock()
	st, ok := o.state[sessionID]
	if ok {
		p := st.progress
		o.mu.RUnlock()
		return &p, nil
	}
	o.mu.RUnlock()

	session, err := o.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, nil
	}
	p := snapshot(session)
	return &p, nil
}

// CancelSync requests cooperative cancellation. The in-flight page always
// finishes; the loop stops before fetching the next one. Cancelling an
// already terminal session is a no-op.
func (o *Orchestrator) CancelSync(sessionID string) error {
	o.mu.RLock()
	st, ok := o.state[sessionID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if st.progress.Status.Terminal() {
		return nil
	}
	log.Info().Str("sessionID", sessionID).Msg("Sync cancellation requested")
	st.cancel()
	return nil
}

func (o *Orchestrator) run(ctx context.Context, session *models.SyncSession, opts StartOptions) {
	defer func() {
		o.mu.Lock()
		if o.running[session.SourceAccountID] == session.ID {
			delete(o.running, session.SourceAccountID)
		}
		o.mu.Unlock()
	}()

	// Persistence and in-flight page processing must survive cancellation;
	// only the loop itself observes ctx.
	procCtx := context.WithoutCancel(ctx)

	session.Status = models.SessionRunning
	o.setProgress(session)
	o.persist(procCtx, session)

	window, err := o.resolveWindow(procCtx, session.SourceAccountID, opts)
	if err != nil {
		o.finish(procCtx, session, models.SessionFailed, fmt.Sprintf("resolve sync window: %v", err))
		return
	}
	cursor := window.cursor

	limiter := rate.NewLimiter(rate.Every(o.cfg.BatchInterval), 1)
	var lastMessageDate time.Time

	for {
		select {
		case <-ctx.Done():
			o.finish(procCtx, session, models.SessionCancelled, "")
			return
		default:
		}
		if err := limiter.Wait(ctx); err != nil {
			o.finish(procCtx, session, models.SessionCancelled, "")
			return
		}

		page, err := o.source.FetchPage(ctx, session.SourceAccountID, PageRequest{
			Cursor:    cursor,
			StartTime: window.start,
			EndTime:   window.end,
			PageSize:  o.cfg.PageSize,
		})
		if err != nil {
			if ctx.Err() != nil {
				o.finish(procCtx, session, models.SessionCancelled, "")
				return
			}
			// Transient failures were already retried inside the source
			// client; whatever reaches here is fatal for the session.
			o.finish(procCtx, session, models.SessionFailed, fmt.Sprintf("page fetch: %v", err))
			return
		}

		budgetExceeded := false
		for i := range page.Messages {
			ext := &page.Messages[i]
			res, perr := o.pipeline.ProcessMessage(procCtx, session.SourceAccountID, ext)
			switch {
			case errors.Is(perr, ErrMalformedMessage):
				session.MalformedSkipped++
				log.Warn().Err(perr).
					Str("sessionID", session.ID).
					Str("externalID", ext.ExternalID).
					Msg("Skipping malformed external message")
			case perr != nil:
				session.ErrorsEncountered++
				log.Error().Err(perr).
					Str("sessionID", session.ID).
					Str("externalID", ext.ExternalID).
					Int("errors", session.ErrorsEncountered).
					Msg("Message processing failed")
				if session.ErrorsEncountered > o.cfg.ErrorBudget {
					budgetExceeded = true
				}
			case res.Status == StatusDuplicate:
				session.DuplicatesSkipped++
			case res.Status == StatusImported:
				session.MessagesProcessed++
				if res.CustomerCreated {
					session.CustomersCreated++
				} else {
					session.CustomersMatched++
				}
				if ext.SentAt.After(lastMessageDate) {
					lastMessageDate = ext.SentAt
				}
			}
			o.setProgress(session)
			if budgetExceeded {
				break
			}
		}

		cursor = page.NextCursor
		session.LastCursor = cursor
		if !lastMessageDate.IsZero() {
			d := lastMessageDate
			session.LastMessageDate = &d
		}
		o.setProgress(session)
		o.persist(procCtx, session)
		o.report(procCtx, session)

		if budgetExceeded {
			o.finish(procCtx, session, models.SessionFailed,
				fmt.Sprintf("error budget of %d exceeded", o.cfg.ErrorBudget))
			return
		}
		if cursor == "" {
			o.finish(procCtx, session, models.SessionCompleted, "")
			return
		}
	}
}

type syncWindow struct {
	start  time.Time
	end    time.Time
	cursor string
}

// resolveWindow picks the starting point per sync type. Incremental syncs
// resume from the last completed session only, so a failed run never
// poisons future starting points.
func (o *Orchestrator) resolveWindow(ctx context.Context, accountID string, opts StartOptions) (syncWindow, error) {
	now := time.Now().UTC()
	switch opts.SyncType {
	case models.SyncTypeInitial:
		return syncWindow{start: now.Add(-o.cfg.MaxHistoryWindow), end: now}, nil
	case models.SyncTypeManual:
		w := syncWindow{start: opts.StartTime, end: opts.EndTime, cursor: opts.Cursor}
		if w.end.IsZero() {
			w.end = now
		}
		return w, nil
	default: // incremental
		last, err := o.sessions.LatestCompletedSession(ctx, accountID)
		if err != nil {
			return syncWindow{}, err
		}
		if last == nil {
			return syncWindow{start: now.Add(-o.cfg.IncrementalLookback), end: now}, nil
		}
		w := syncWindow{end: now, cursor: last.LastCursor}
		if last.LastMessageDate != nil {
			w.start = *last.LastMessageDate
		} else {
			w.start = now.Add(-o.cfg.IncrementalLookback)
		}
		return w, nil
	}
}

// finish freezes the session in a terminal state and persists the final
// record.
func (o *Orchestrator) finish(ctx context.Context, session *models.SyncSession, status models.SessionStatus, errMsg string) {
	now := time.Now().UTC()
	session.Status = status
	session.ErrorMessage = errMsg
	session.CompletedAt = &now
	o.setProgress(session)
	o.persist(ctx, session)
	o.report(ctx, session)

	evt := log.Info()
	if status == models.SessionFailed {
		evt = log.Error()
	}
	evt.Str("sessionID", session.ID).
		Str("accountID", session.SourceAccountID).
		Str("status", string(status)).
		Int("processed", session.MessagesProcessed).
		Int("duplicatesSkipped", session.DuplicatesSkipped).
		Int("errors", session.ErrorsEncountered).
		Str("error", errMsg).
		Msg("Sync session finished")
}

func (o *Orchestrator) persist(ctx context.Context, session *models.SyncSession) {
	if err := o.sessions.UpdateSession(ctx, session); err != nil {
		log.Error().Err(err).Str("sessionID", session.ID).Msg("Could not persist sync session snapshot")
	}
}

func (o *Orchestrator) report(ctx context.Context, session *models.SyncSession) {
	if o.sink == nil {
		return
	}
	o.sink.PageCompleted(ctx, monitor.PageReport{
		SessionID:       session.ID,
		SourceAccountID: session.SourceAccountID,
		SyncType:        session.SyncType,
		Status:          session.Status,
		Counters:        session.SyncCounters,
		ReportedAt:      time.Now().UTC(),
	})
}

func (o *Orchestrator) setProgress(session *models.SyncSession) {
	o.mu.Lock()
	if st, ok := o.state[session.ID]; ok {
		st.progress = snapshot(session)
	}
	o.mu.Unlock()
}

func snapshot(session *models.SyncSession) Progress {
	return Progress{
		SessionID:       session.ID,
		SourceAccountID: session.SourceAccountID,
		SyncType:        session.SyncType,
		Status:          session.Status,
		Counters:        session.SyncCounters,
		LastCursor:      session.LastCursor,
		ErrorMessage:    session.ErrorMessage,
		StartedAt:       session.StartedAt,
	}
}
