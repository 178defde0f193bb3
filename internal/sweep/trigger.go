package sweep

import (
	"context"

	"github.com/google/uuid"

	"github.com/mrz1836/hdscan/internal/metrics"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// Logger is the interface for sweep logging.
type Logger interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config controls when the trigger fires.
type Config struct {
	Enabled     bool
	Threshold   int64
	Destination string
}

// Reasons reported with StatusSkipped.
const (
	ReasonBelowThreshold     = "balance not above threshold"
	ReasonNoSpendableOutputs = "no spendable outputs (balance is unconfirmed or pending)"
)

// Trigger decides whether a finished scan produces a sweep request.
type Trigger struct {
	cfg     Config
	hook    Hook
	guard   *Guard
	logger  Logger
	metrics *metrics.Metrics
}

// NewTrigger builds a trigger. A nil guard gets a private one; a nil
// metrics uses metrics.Global.
func NewTrigger(cfg Config, hook Hook, guard *Guard, logger Logger, m *metrics.Metrics) *Trigger {
	if guard == nil {
		guard = NewGuard()
	}
	if m == nil {
		m = metrics.Global
	}
	return &Trigger{cfg: cfg, hook: hook, guard: guard, logger: logger, metrics: m}
}

// Enabled reports whether the trigger can ever fire.
func (t *Trigger) Enabled() bool {
	return t != nil && t.cfg.Enabled && t.cfg.Destination != "" && t.hook != nil
}

// Evaluate submits at most one request for the run. It returns nil when
// sweeping is disabled. Submission failures are reported in the outcome and
// never returned as errors.
func (t *Trigger) Evaluate(ctx context.Context, identity string, total int64, utxos []Input) *Outcome {
	if !t.Enabled() {
		return nil
	}

	if total <= t.cfg.Threshold {
		t.metrics.RecordSweep(metrics.OutcomeSkipped)
		return &Outcome{Status: StatusSkipped, Reason: ReasonBelowThreshold}
	}
	if len(utxos) == 0 {
		t.metrics.RecordSweep(metrics.OutcomeSkipped)
		return &Outcome{Status: StatusSkipped, Reason: ReasonNoSpendableOutputs}
	}

	key := identity + ":" + Digest(utxos)
	if !t.guard.Acquire(key) {
		t.metrics.RecordSweep(string(StatusDuplicate))
		return &Outcome{
			Status:      StatusDuplicate,
			Reason:      "request already submitted for this UTXO set",
			Destination: t.cfg.Destination,
		}
	}

	req := Request{
		RunID:        uuid.NewString(),
		TotalBalance: total,
		UTXOs:        utxos,
		Destination:  t.cfg.Destination,
	}

	if err := t.hook.Submit(ctx, req); err != nil {
		t.guard.Release(key)
		err = scanerr.WithCause(scanerr.ErrSweepFailed, err)
		if t.logger != nil {
			t.logger.Error("sweep run %s failed: %v", req.RunID, err)
		}
		t.metrics.RecordSweep(metrics.OutcomeFailure)
		return &Outcome{
			Status:      StatusFailed,
			Destination: t.cfg.Destination,
			Error:       err.Error(),
		}
	}

	if t.logger != nil {
		t.logger.Info("sweep run %s submitted: %d sat in %d outputs to %s", req.RunID, total, len(utxos), req.Destination)
	}
	t.metrics.RecordSweep(metrics.OutcomeSuccess)
	return &Outcome{Status: StatusSubmitted, Destination: t.cfg.Destination}
}
