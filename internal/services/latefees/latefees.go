// Package latefees applies the daily late fee to overdue payment obligations.
package latefees

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
)

var (
	lateFeesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcl_late_fees_created_total",
		Help: "Late fees created by the accrual job.",
	})
	lateFeeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcl_late_fee_failures_total",
		Help: "Obligations the accrual job could not process, by step.",
	}, []string{"step"})
	lateFeeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pcl_late_fee_runs_total",
		Help: "Accrual job invocations by outcome.",
	}, []string{"outcome"})
	obligationsMarkedOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pcl_obligations_marked_overdue_total",
		Help: "Pending obligations moved to overdue after their due day passed.",
	})
)

// ErrUnauthorized rejects a trigger without the expected bearer secret
var ErrUnauthorized = apperr.New(apperr.ErrAuthentication, "Unauthorized.")

// ObligationStore is the payment schedule as seen by the job
type ObligationStore interface {
	ListAccruing(ctx context.Context) ([]models.PaymentObligation, error)
	ListPendingDueBefore(ctx context.Context, day time.Time) ([]models.PaymentObligation, error)
	MarkOverdue(ctx context.Context, id uuid.UUID) error
}

// FeeStore records late fees. Create must fail with apperr.ErrConflict when a
// fee already exists for the same lease, payment and day.
type FeeStore interface {
	Exists(ctx context.Context, leaseID, paymentID uuid.UUID, day time.Time) (bool, error)
	Create(ctx context.Context, fee *models.LateFee) error
}

// Job applies late fees
type Job struct {
	obligations ObligationStore
	fees        FeeStore
	cronSecret  string
	amount      models.Cents
}

// NewJob creates a job. An empty cronSecret makes Authorize reject every call.
func NewJob(obligations ObligationStore, fees FeeStore, cronSecret string, amount models.Cents) *Job {
	if amount <= 0 {
		amount = models.DefaultLateFee
	}
	return &Job{
		obligations: obligations,
		fees:        fees,
		cronSecret:  cronSecret,
		amount:      amount,
	}
}

// Amount returns the fee applied per obligation per day
func (j *Job) Amount() models.Cents { return j.amount }

// Authorize checks an Authorization header against the configured secret
func (j *Job) Authorize(header string) error {
	if j.cronSecret == "" {
		return ErrUnauthorized
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(j.cronSecret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Result summarises one accrual pass
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Accrue applies one fee per failed or overdue unpaid obligation for the UTC
// day of now. Fees already applied that day are skipped, and a failure on
// one obligation does not stop the others.
func (j *Job) Accrue(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	today := models.DayUTC(now)

	obligations, err := j.obligations.ListAccruing(ctx)
	if err != nil {
		lateFeeRuns.WithLabelValues("error").Inc()
		return result, fmt.Errorf("failed to list accruing obligations: %w", err)
	}

	for i := range obligations {
		p := &obligations[i]
		if !p.AccruesLateFees() {
			continue
		}
		if err := ctx.Err(); err != nil {
			lateFeeRuns.WithLabelValues("cancelled").Inc()
			return result, err
		}

		created, err := j.accrueOne(ctx, p, now, today)
		switch {
		case err != nil:
			result.Failed++
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}

	lateFeesCreated.Add(float64(result.Created))
	lateFeeRuns.WithLabelValues("ok").Inc()
	slog.Info("late fee accrual finished",
		"day", today.Format(models.DateLayout),
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (j *Job) accrueOne(ctx context.Context, p *models.PaymentObligation, now, today time.Time) (bool, error) {
	log := slog.With("lease_id", p.LeaseID, "payment_id", p.ID)

	exists, err := j.fees.Exists(ctx, p.LeaseID, p.ID, today)
	if err != nil {
		lateFeeFailures.WithLabelValues("check").Inc()
		log.Warn("late fee check failed", "error", err)
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := j.fees.Create(ctx, models.NewLateFee(p, j.amount, now)); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// another run got there first
			return false, nil
		}
		lateFeeFailures.WithLabelValues("create").Inc()
		log.Warn("late fee create failed", "error", err)
		return false, err
	}

	if p.Status != models.PaymentOverdue {
		if err := j.obligations.MarkOverdue(ctx, p.ID); err != nil {
			lateFeeFailures.WithLabelValues("status").Inc()
			log.Warn("failed to mark obligation overdue after fee", "error", err)
		}
	}
	return true, nil
}

// MarkOverdue moves pending obligations whose due day is before the UTC day
// of now to overdue, and returns how many moved.
func (j *Job) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	pending, err := j.obligations.ListPendingDueBefore(ctx, models.DayUTC(now))
	if err != nil {
		return 0, fmt.Errorf("failed to list pending obligations: %w", err)
	}

	marked := 0
	for i := range pending {
		p := &pending[i]
		if !p.IsPastDue(now) {
			continue
		}
		if err := j.obligations.MarkOverdue(ctx, p.ID); err != nil {
			lateFeeFailures.WithLabelValues("mark_overdue").Inc()
			slog.Warn("failed to mark obligation overdue", "payment_id", p.ID, "error", err)
			continue
		}
		marked++
	}

	obligationsMarkedOverdue.Add(float64(marked))
	return marked, nil
}

// RunResult is the outcome of a scheduled trigger
type RunResult struct {
	MarkedOverdue int `json:"markedOverdue"`
	Result
}

// Run derives overdue statuses and then accrues fees
func (j *Job) Run(ctx context.Context, now time.Time) (RunResult, error) {
	marked, err := j.MarkOverdue(ctx, now)
	if err != nil {
		return RunResult{}, err
	}
	result, err := j.Accrue(ctx, now)
	return RunResult{MarkedOverdue: marked, Result: result}, err
}
