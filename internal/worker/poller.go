// Package worker drives retrying operations back through their executor.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opledger/internal/audit"
	"opledger/internal/ledger"
	"opledger/internal/model"
	"opledger/internal/service"
)

const actorPoller = "poller"

// Outcome labels recorded per processed operation.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// Config controls the poll loop.
type Config struct {
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
	Sink      audit.Sink
	// Registerer receives the poller metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Poller selects operations that are due for retry and replays them.
type Poller struct {
	svc      service.OperationService
	exec     Executor
	interval time.Duration
	batch    int
	now      func() time.Time
	sink     audit.Sink

	outcomes *prometheus.CounterVec
	runs     prometheus.Counter
}

// NewPoller constructs a Poller.
func NewPoller(svc service.OperationService, exec Executor, cfg Config) *Poller {
	p := &Poller{
		svc:      svc,
		exec:     exec,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		now:      cfg.Now,
		sink:     audit.OrNop(cfg.Sink),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opledger_poller_operations_total",
			Help: "Operations processed by the retry poller, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opledger_poller_runs_total",
			Help: "Completed poll cycles.",
		}),
	}
	if p.interval <= 0 {
		p.interval = 30 * time.Second
	}
	if p.batch <= 0 {
		p.batch = 50
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(p.outcomes, p.runs)
	}
	return p
}

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.sink.Record(ctx, audit.LevelInfo, "poller_started", map[string]any{
		"component":  "poller",
		"interval":   p.interval.String(),
		"batch_size": p.batch,
	})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.sink.Record(ctx, audit.LevelError, "poller_cycle_failed", map[string]any{
				"component": "poller",
				"error":     err,
			})
		}
		select {
		case <-ctx.Done():
			p.sink.Record(context.Background(), audit.LevelInfo, "poller_stopped", map[string]any{"component": "poller"})
			return nil
		case <-ticker.C:
		}
	}
}

// Start runs the poller in the background. The returned channel is closed
// once Run has returned, so callers can wait for in-flight writes before
// releasing the database.
func (p *Poller) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			p.sink.Record(context.Background(), audit.LevelError, "poller_exited", map[string]any{
				"component": "poller",
				"error":     err,
			})
		}
	}()
	return done
}

// RunOnce processes a single batch of due operations and returns how many
// were handled per outcome.
func (p *Poller) RunOnce(ctx context.Context) (map[string]int, error) {
	now := p.now()
	ops, err := p.svc.ListReadyForRetry(ctx, now, p.batch)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for i := range ops {
		if ctx.Err() != nil {
			break
		}
		outcome := p.process(ctx, &ops[i])
		counts[outcome]++
		p.outcomes.WithLabelValues(outcome).Inc()
	}
	p.runs.Inc()
	return counts, nil
}

func (p *Poller) process(ctx context.Context, op *model.Operation) string {
	res, execErr := p.exec.Execute(ctx, op)
	if execErr == nil {
		code := res.StatusCode
		_, err := p.svc.RecordSuccess(ctx, op.ID, service.SuccessInput{
			Response:        res.Body,
			StatusCode:      &code,
			ActorID:         actorPoller,
			ExpectedVersion: op.Version,
		})
		return p.settle(ctx, op, OutcomeSuccess, err)
	}

	var callErr *CallError
	if !errors.As(execErr, &callErr) {
		callErr = &CallError{Retryable: true, Err: execErr}
	}
	var code *int
	if callErr.StatusCode > 0 {
		c := callErr.StatusCode
		code = &c
	}

	if !callErr.Retryable {
		_, err := p.svc.RecordFailure(ctx, op.ID, service.FailureInput{
			Message:         callErr.Error(),
			Response:        callErr.Body,
			StatusCode:      code,
			ActorID:         actorPoller,
			ExpectedVersion: op.Version,
		})
		return p.settle(ctx, op, OutcomeFailed, err)
	}

	_, scheduled, err := p.svc.ScheduleRetry(ctx, op.ID, service.RetryInput{
		Delay:           callErr.RetryAfter,
		Reason:          callErr.Error(),
		Response:        callErr.Body,
		StatusCode:      code,
		ActorID:         actorPoller,
		ExpectedVersion: op.Version,
	})
	if err == nil && !scheduled {
		return p.settle(ctx, op, OutcomeExhausted, nil)
	}
	return p.settle(ctx, op, OutcomeRetry, err)
}

// settle maps the result of a state write to an outcome. A record that another
// worker already moved on is skipped.
func (p *Poller) settle(ctx context.Context, op *model.Operation, outcome string, err error) string {
	if err == nil {
		return outcome
	}
	fields := map[string]any{
		"component":    "poller",
		"id":           op.ID,
		"operation_id": op.OperationID,
		"error":        err,
	}
	if errors.Is(err, ledger.ErrTerminal) || errors.Is(err, service.ErrConflict) || errors.Is(err, service.ErrNotFound) {
		p.sink.Record(ctx, audit.LevelDebug, "poller_operation_skipped", fields)
		return OutcomeSkipped
	}
	p.sink.Record(ctx, audit.LevelError, "poller_operation_failed", fields)
	return OutcomeError
}
