package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "pamsync/contracts/mq"
	"pamsync/internal/model"
	"pamsync/internal/service/reconcile"
	"pamsync/internal/sheet"
	"pamsync/internal/validate"
	"pamsync/pkg/logger"
	"pamsync/pkg/metrics"
	"pamsync/pkg/otel"
	"pamsync/pkg/trace"
	"pamsync/pkg/util"
)

// DefaultMinInterval is the throttle window for non-forced syncs.
const DefaultMinInterval = 5 * time.Minute

type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeThrottled Outcome = "throttled"
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeFailed    Outcome = "failed"
)

// Source is one organization's sheet export.
type Source struct {
	OrgID      uuid.UUID
	URL        string
	Label      string
	ImporterID uuid.UUID
}

type SyncRequest struct {
	Force   bool
	Trigger SyncTrigger
}

// SyncResult distinguishes "nothing new", "failed" and "N tasks imported".
type SyncResult struct {
	OrgID        uuid.UUID         `json:"org_id"`
	Trigger      TriggerKind       `json:"trigger"`
	Outcome      Outcome           `json:"outcome"`
	Success      bool              `json:"success"`
	TasksCreated int               `json:"tasks_created"`
	Errors       []string          `json:"errors"`
	Period       *model.PeriodRef  `json:"period,omitempty"`
	Periods      []model.PeriodRef `json:"periods,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// BatchReconciler persists validated rows.
type BatchReconciler interface {
	ReconcileBatch(ctx context.Context, orgID, importerID uuid.UUID, sourceLabel string, rows []model.TaskImport) ([]reconcile.Outcome, error)
}

// CompletionPublisher announces finished syncs. Optional.
type CompletionPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Orchestrator runs fetch, fingerprint gate, parse, validate and reconcile for one source.
type Orchestrator struct {
	source     Source
	fetcher    Fetcher
	state      SyncStateStore
	validator  *validate.Validator
	reconciler BatchReconciler
	publisher  CompletionPublisher
	policy     ImportPolicy
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	inFlight atomic.Bool
}

type Option func(*Orchestrator)

func WithPolicy(p ImportPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithMinInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

func WithPublisher(p CompletionPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	source Source,
	fetcher Fetcher,
	state SyncStateStore,
	validator *validate.Validator,
	reconciler BatchReconciler,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		fetcher:    fetcher,
		state:      state,
		validator:  validator,
		reconciler: reconciler,
		policy:     PolicyStrict,
		interval:   DefaultMinInterval,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Source() Source {
	return o.source
}

// Sync runs the pipeline once. It ignores (does not queue) calls made while
// another sync of the same source is running. A started sync is not aborted
// when the caller's context is cancelled.
func (o *Orchestrator) Sync(ctx context.Context, req SyncRequest) SyncResult {
	if req.Trigger == nil {
		req.Trigger = Manual{}
	}
	res := SyncResult{
		OrgID:     o.source.OrgID,
		Trigger:   req.Trigger.Kind(),
		StartedAt: o.now(),
		Errors:    []string{},
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return o.finish(ctx, res, OutcomeInFlight)
	}
	defer o.inFlight.Store(false)

	ctx, _ = trace.Ensure(context.WithoutCancel(ctx))
	ctx, span := otel.StartSpan(ctx, "pam.sync")
	res = o.run(ctx, req, res)
	var spanErr error
	if res.Outcome == OutcomeFailed && len(res.Errors) > 0 {
		spanErr = errors.New(res.Errors[0])
	}
	otel.EndSpan(span, spanErr)

	if res.Outcome != OutcomeThrottled {
		o.publishCompletion(ctx, res)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, req SyncRequest, res SyncResult) SyncResult {
	log := logger.WithTrace(ctx, o.logger).With(
		zap.String("org_id", o.source.OrgID.String()),
		zap.String("trigger", string(res.Trigger)),
		zap.Bool("force", req.Force),
	)
	key := o.source.OrgID.String()

	prev, _, err := o.state.Get(ctx, key)
	if err != nil {
		// state is advisory; a read failure only disables the gates
		log.Warn("Failed to read sync state", zap.Error(err))
		prev = SyncState{}
	}

	if !req.Force && !prev.LastSyncAt.IsZero() && res.StartedAt.Sub(prev.LastSyncAt) < o.interval {
		log.Debug("Sync throttled", zap.Time("last_sync_at", prev.LastSyncAt))
		return o.finish(ctx, res, OutcomeThrottled)
	}

	doc, err := o.fetcher.Fetch(ctx, o.source.URL)
	if err != nil {
		_, errType := util.ClassifyError(err)
		metrics.IncrementFetchError(errType)
		log.Error("Failed to fetch sheet", zap.String("error_type", errType), zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
		return o.finish(ctx, res, OutcomeFailed)
	}

	res.Fingerprint = Fingerprint(doc)
	if !req.Force && res.Fingerprint == prev.Fingerprint {
		o.saveState(ctx, log, SyncState{Fingerprint: prev.Fingerprint, LastSyncAt: res.StartedAt})
		log.Info("Sheet unchanged", zap.String("fingerprint", res.Fingerprint))
		return o.finish(ctx, res, OutcomeUnchanged)
	}

	parsed, err := sheet.Parse(doc)
	if err != nil {
		log.Warn("Sheet rejected", zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
		return o.finish(ctx, res, OutcomeFailed)
	}

	checked := o.validator.Validate(parsed)
	for _, rowErr := range checked.Errors {
		metrics.IncrementRowError(validate.Reason(rowErr))
	}
	res.Errors = append(res.Errors, checked.Messages()...)
	if checked.Failed() || (o.policy == PolicyStrict && len(checked.Errors) > 0) {
		log.Warn("Sheet validation failed",
			zap.Int("valid_rows", len(checked.Valid)),
			zap.Int("row_errors", len(checked.Errors)),
			zap.String("policy", string(o.policy)),
		)
		if checked.Failed() && len(res.Errors) == 0 {
			res.Errors = append(res.Errors, "no valid rows")
		}
		return o.finish(ctx, res, OutcomeFailed)
	}

	outs, err := o.reconciler.ReconcileBatch(ctx, o.source.OrgID, o.source.ImporterID, o.source.Label, checked.Valid)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return o.finish(ctx, res, OutcomeFailed)
	}

	for _, out := range outs {
		res.TasksCreated += out.TasksCreated
		res.Periods = append(res.Periods, out.WeekPlan.Period())
	}
	if n := len(res.Periods); n > 0 {
		latest := res.Periods[n-1]
		res.Period = &latest
	}

	o.saveState(ctx, log, SyncState{Fingerprint: res.Fingerprint, LastSyncAt: res.StartedAt})
	log.Info("Sheet imported",
		zap.Int("tasks_created", res.TasksCreated),
		zap.Int("periods", len(res.Periods)),
		zap.Int("row_errors", len(checked.Errors)),
	)
	return o.finish(ctx, res, OutcomeImported)
}

func (o *Orchestrator) saveState(ctx context.Context, log *zap.Logger, st SyncState) {
	if err := o.state.Set(ctx, o.source.OrgID.String(), st); err != nil {
		log.Error("Failed to persist sync state", zap.Error(err))
	}
}

func (o *Orchestrator) finish(_ context.Context, res SyncResult, outcome Outcome) SyncResult {
	res.Outcome = outcome
	res.Success = outcome != OutcomeFailed
	if !res.Success {
		res.TasksCreated = 0
		res.Period = nil
		res.Periods = nil
	}
	res.FinishedAt = o.now()
	metrics.RecordSync(o.source.OrgID.String(), string(outcome), res.FinishedAt.Sub(res.StartedAt))
	return res
}

func (o *Orchestrator) publishCompletion(ctx context.Context, res SyncResult) {
	if o.publisher == nil || res.Outcome == OutcomeInFlight {
		return
	}
	payload := mqcontracts.SyncCompletedPayload{
		OrgID:        res.OrgID.String(),
		Trigger:      string(res.Trigger),
		Outcome:      string(res.Outcome),
		Success:      res.Success,
		TasksCreated: res.TasksCreated,
		Errors:       res.Errors,
		FinishedAt:   res.FinishedAt,
		TraceID:      trace.FromContext(ctx),
	}
	for _, p := range res.Periods {
		payload.Periods = append(payload.Periods, p.String())
	}
	if err := o.publisher.Publish(ctx, mqcontracts.RoutingSyncCompleted, payload); err != nil {
		logger.WithTrace(ctx, o.logger).Warn("Failed to publish sync completion",
			zap.String("org_id", res.OrgID.String()),
			zap.Error(err),
		)
	}
}

// String renders a one-line summary for CLI output.
func (r SyncResult) String() string {
	switch r.Outcome {
	case OutcomeImported:
		return fmt.Sprintf("imported %d tasks (%d row errors)", r.TasksCreated, len(r.Errors))
	case OutcomeFailed:
		return fmt.Sprintf("failed with %d errors", len(r.Errors))
	default:
		return string(r.Outcome)
	}
}
