// internal/service/dispatcher.go
//
// The dispatch worker pipeline. Each cycle selects a bounded batch of
// eligible campaigns and runs them through claim -> credential -> quota ->
// send -> record. The claim is an atomic CAS in the store, so any number of
// worker instances can run the same loop without double-sending.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/metrics"
	"github.com/mailkite/campaign-engine/internal/model"
	"github.com/mailkite/campaign-engine/internal/quota"
	"github.com/mailkite/campaign-engine/internal/repository"
	"github.com/mailkite/campaign-engine/internal/secrets"
	"github.com/mailkite/campaign-engine/internal/sender"
)

// CredentialResolver is what the dispatcher needs from the vault.
type CredentialResolver interface {
	ResolveActive(ctx context.Context, tenantID string) (*secrets.Credential, error)
}

// DispatcherConfig bounds each cycle.
type DispatcherConfig struct {
	BatchSize   int
	Concurrency int
	SendTimeout time.Duration
	MaxAttempts int
	RetryBase   time.Duration // backoff = RetryBase * 2^(attempts-1), capped
	RetryCap    time.Duration
	QuotaDelay  time.Duration // reschedule delay on quota exhaustion
}

func (c *DispatcherConfig) fillDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 30 * time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 10 * time.Minute
	}
	if c.QuotaDelay <= 0 {
		c.QuotaDelay = 10 * time.Minute
	}
}

type Dispatcher struct {
	Campaigns   repository.CampaignRepositoryInterface
	Tenants     repository.TenantRepositoryInterface
	Credentials CredentialResolver
	Quota       *quota.Enforcer
	Plans       quota.PlanTable
	Sender      sender.Sender
	Log         *zap.SugaredLogger
	Config      DispatcherConfig

	now func() time.Time
}

func NewDispatcher(
	campaigns repository.CampaignRepositoryInterface,
	tenants repository.TenantRepositoryInterface,
	credentials CredentialResolver,
	enforcer *quota.Enforcer,
	plans quota.PlanTable,
	snd sender.Sender,
	log *zap.SugaredLogger,
	cfg DispatcherConfig,
) *Dispatcher {
	cfg.fillDefaults()
	if log == nil {
		log = zap.S()
	}
	return &Dispatcher{
		Campaigns:   campaigns,
		Tenants:     tenants,
		Credentials: credentials,
		Quota:       enforcer,
		Plans:       plans,
		Sender:      snd,
		Log:         log,
		Config:      cfg,
		now:         time.Now,
	}
}

// Run polls on a fixed interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil {
			d.Log.Errorw("dispatch cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single dispatch cycle and returns the number of
// candidates handled. Suitable for cron-triggered invocations.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	candidates, err := d.Campaigns.Candidates(ctx, d.Config.BatchSize, d.now())
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Config.Concurrency)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			d.Dispatch(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return len(candidates), nil
}

// DispatchByID fetches one campaign and dispatches it. Used by the queue
// trigger; claim conflicts with the poller are expected and silent.
func (d *Dispatcher) DispatchByID(ctx context.Context, id string) error {
	c, err := d.Campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status.Terminal() || c.ScheduledAt.After(d.now()) {
		return nil
	}
	d.Dispatch(ctx, c)
	return nil
}

// Dispatch runs the full pipeline for one campaign. Errors are recorded on
// the campaign record and never propagate; one bad campaign must not block
// the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, c *model.Campaign) {
	// The claim re-checks eligibility and reports the row's live attempt
	// count; the candidate snapshot may be stale by the time we get here.
	attemptsSoFar, err := d.Campaigns.Claim(ctx, c.ID, d.now())
	if err != nil {
		if errors.Is(err, appErrors.ErrClaimConflict) {
			metrics.ClaimConflictTotal.Inc()
			return
		}
		d.Log.Errorw("claim failed", "campaign", c.ID, "err", err)
		return
	}

	tenant, err := d.Tenants.GetByID(ctx, c.TenantID)
	if err != nil {
		d.failOrDefer(ctx, c, err)
		return
	}

	cred, err := d.Credentials.ResolveActive(ctx, c.TenantID)
	if err != nil {
		d.failOrDefer(ctx, c, err)
		return
	}

	n := len(c.Recipients)
	plan := d.Plans.Get(tenant.Plan)
	allow, err := d.Quota.CheckAllowance(ctx, c.TenantID, plan, n)
	if err != nil {
		d.deferRetry(ctx, c, err)
		return
	}
	if !allow.Allowed {
		// Quota exhaustion is not a send failure: reschedule without
		// consuming an attempt.
		metrics.QuotaDeferredTotal.Inc()
		qErr := &appErrors.QuotaExceededError{TenantID: c.TenantID, Requested: n, Remaining: allow.Remaining}
		if err := d.Campaigns.MarkRetry(ctx, c.ID, false, d.now().Add(d.Config.QuotaDelay), 0, qErr.Error()); err != nil {
			d.Log.Errorw("quota reschedule failed", "campaign", c.ID, "err", err)
		}
		d.Log.Infow("campaign deferred on quota",
			"campaign", c.ID, "tenant", c.TenantID, "requested", n, "remaining", allow.Remaining)
		return
	}

	msg := sender.Message{
		SenderEmail:    tenant.SenderEmail,
		SenderName:     tenant.SenderName,
		To:             c.Recipients,
		Subject:        c.Subject,
		HTML:           c.HTMLContent,
		IdempotencyKey: c.IdempotencyKey,
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.Config.SendTimeout)
	start := d.now()
	res, err := d.Sender.Send(sendCtx, cred.APIKey, msg)
	cancel()
	metrics.SendDuration.Observe(time.Since(start).Seconds())

	attempts := attemptsSoFar + 1
	if err != nil {
		httpStatus := 0
		var sendErr *appErrors.SendError
		if errors.As(err, &sendErr) {
			httpStatus = sendErr.HTTPStatus
		}

		if attempts >= d.Config.MaxAttempts {
			metrics.DispatchFailedTotal.Inc()
			if mErr := d.Campaigns.MarkFailed(ctx, c.ID, true, httpStatus, err.Error()); mErr != nil {
				d.Log.Errorw("mark failed errored", "campaign", c.ID, "err", mErr)
			}
			d.Log.Errorw("campaign failed permanently",
				"campaign", c.ID, "tenant", c.TenantID, "attempts", attempts, "err", err)
			return
		}

		metrics.DispatchRetryTotal.Inc()
		at := d.now().Add(d.backoff(attempts))
		if mErr := d.Campaigns.MarkRetry(ctx, c.ID, true, at, httpStatus, err.Error()); mErr != nil {
			d.Log.Errorw("mark retry errored", "campaign", c.ID, "err", mErr)
		}
		d.Log.Warnw("send attempt failed, rescheduled",
			"campaign", c.ID, "tenant", c.TenantID, "attempt", attempts, "next", at, "err", err)
		return
	}

	// Send accepted: count the usage before flipping the status, so a crash
	// here over-counts quota rather than under-counting it.
	if err := d.Quota.RecordSend(ctx, c.TenantID, n); err != nil {
		d.Log.Errorw("usage increment failed after send", "campaign", c.ID, "err", err)
	}

	if err := d.Campaigns.MarkSent(ctx, c.ID, res.MessageID, res.HTTPStatus); err != nil {
		d.Log.Errorw("mark sent errored", "campaign", c.ID, "err", err)
		return
	}
	metrics.DispatchSentTotal.Inc()
	d.Log.Infow("campaign sent",
		"campaign", c.ID, "tenant", c.TenantID, "recipients", n,
		"message_id", res.MessageID, "attempt", attempts)
}

// failOrDefer decides what a pre-send error means: credential and
// configuration problems are terminal (a missing key will not fix itself),
// anything else is treated as transient store trouble and rescheduled
// without consuming an attempt.
func (d *Dispatcher) failOrDefer(ctx context.Context, c *model.Campaign, err error) {
	var confErr *appErrors.ConfigurationError
	var integErr *appErrors.IntegrityError
	var notConf *appErrors.NotConfiguredError
	var noTenant *appErrors.TenantNotFoundError

	if errors.As(err, &confErr) || errors.As(err, &integErr) ||
		errors.As(err, &notConf) || errors.As(err, &noTenant) {
		metrics.CredentialErrorsTotal.Inc()
		metrics.DispatchFailedTotal.Inc()
		if mErr := d.Campaigns.MarkFailed(ctx, c.ID, false, 0, err.Error()); mErr != nil {
			d.Log.Errorw("mark failed errored", "campaign", c.ID, "err", mErr)
		}
		d.Log.Errorw("campaign failed on credential resolution",
			"campaign", c.ID, "tenant", c.TenantID, "err", err)
		return
	}

	d.deferRetry(ctx, c, err)
}

func (d *Dispatcher) deferRetry(ctx context.Context, c *model.Campaign, err error) {
	at := d.now().Add(d.Config.RetryBase)
	if mErr := d.Campaigns.MarkRetry(ctx, c.ID, false, at, 0, err.Error()); mErr != nil {
		d.Log.Errorw("defer reschedule failed", "campaign", c.ID, "err", mErr)
	}
	d.Log.Warnw("campaign deferred on transient error", "campaign", c.ID, "err", err)
}

// backoff grows exponentially with the attempt count and is capped.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.Config.RetryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.Config.RetryCap {
			return d.Config.RetryCap
		}
	}
	if delay > d.Config.RetryCap {
		delay = d.Config.RetryCap
	}
	return delay
}
