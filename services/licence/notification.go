package licence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"licensing-controlplane/pkg/metrics"
	"licensing-controlplane/pkg/task"
	"licensing-controlplane/pkg/taskname"
	"licensing-controlplane/services/records"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const notifyMaxRetry = 10

type NotifyPayload struct {
	OutboxID string `json:"outbox_id"`
}

// Dispatcher hands committed outbox rows to the task queue.
type Dispatcher struct {
	repo     *Repository
	enqueuer task.Enqueuer
}

func NewDispatcher(repo *Repository, enqueuer task.Enqueuer) *Dispatcher {
	return &Dispatcher{repo: repo, enqueuer: enqueuer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ob *NotificationOutbox) error {
	payload, err := json.Marshal(NotifyPayload{OutboxID: ob.ID})
	if err != nil {
		return err
	}

	_, err = d.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.LicenceNotify, payload),
		asynq.TaskID(ob.ID),
		asynq.MaxRetry(notifyMaxRetry),
		asynq.Queue("default"),
	)
	// a conflicting task id means an earlier dispatch already made it to the queue
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		if rerr := d.repo.RecordOutboxFailure(ctx, ob.ID, err, ""); rerr != nil {
			zap.L().Warn("failed to record dispatch failure", zap.String("outbox_id", ob.ID), zap.Error(rerr))
		}
		return fmt.Errorf("enqueue notification %s: %w", ob.ID, err)
	}

	if err := d.repo.MarkOutbox(ctx, ob.ID, OutboxDispatched, OutboxPending); err != nil {
		return fmt.Errorf("mark outbox %s dispatched: %w", ob.ID, err)
	}
	ob.Status = OutboxDispatched
	metrics.NotificationsTotal.WithLabelValues(OutboxDispatched).Inc()
	return nil
}

// NotifyHandler delivers outbox rows picked up from the queue.
type NotifyHandler struct {
	repo     *Repository
	notifier records.NotificationService
}

func NewNotifyHandler(repo *Repository, notifier records.NotificationService) *NotifyHandler {
	return &NotifyHandler{repo: repo, notifier: notifier}
}

func (h *NotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p NotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode notify payload: %v: %w", err, asynq.SkipRetry)
	}

	ob, err := h.repo.GetOutbox(ctx, p.OutboxID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("outbox %s not found: %w", p.OutboxID, asynq.SkipRetry)
		}
		return err
	}
	if ob.Status == OutboxDelivered {
		return nil
	}

	log := zap.L().With(
		zap.String("outbox_id", ob.ID),
		zap.String("licence_id", ob.LicenceID),
		zap.String("event", ob.Event),
	)

	if err := h.notifier.Notify(ctx, ob.Recipient, ob.Event, ob.Payload); err != nil {
		status := ""
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, ok := asynq.GetMaxRetry(ctx)
		if ok && retried >= maxRetry {
			status = OutboxFailed
			metrics.NotificationsTotal.WithLabelValues(OutboxFailed).Inc()
		}
		if rerr := h.repo.RecordOutboxFailure(ctx, ob.ID, err, status); rerr != nil {
			log.Warn("failed to record notification failure", zap.Error(rerr))
		}
		log.Warn("notification delivery failed", zap.Int("retried", retried), zap.Error(err))
		return err
	}

	if err := h.repo.MarkOutbox(ctx, ob.ID, OutboxDelivered); err != nil {
		return err
	}
	metrics.NotificationsTotal.WithLabelValues(OutboxDelivered).Inc()
	log.Info("notification delivered")
	return nil
}

// Relay re-dispatches outbox rows the issuing process failed to enqueue and
// clears reservations abandoned by crashed issuances.
type Relay struct {
	repo       *Repository
	dispatcher *Dispatcher
	artifacts  ArtifactStore
	interval   time.Duration
	pendingTTL time.Duration
	batch      int
	now        func() time.Time
}

func NewRelay(repo *Repository, dispatcher *Dispatcher, artifacts ArtifactStore, interval, pendingTTL time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Minute
	}
	if pendingTTL <= 0 {
		pendingTTL = 15 * time.Minute
	}
	return &Relay{
		repo:       repo,
		dispatcher: dispatcher,
		artifacts:  artifacts,
		interval:   interval,
		pendingTTL: pendingTTL,
		batch:      100,
		now:        time.Now,
	}
}

func StartRelay(lc fx.Lifecycle, r *Relay) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (r *Relay) run(ctx context.Context) {
	zap.L().Info("[Relay] started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Relay] stopped")
			return
		}
	}
}

func (r *Relay) RunOnce(ctx context.Context) {
	start := time.Now()
	dispatched := r.redispatch(ctx)
	swept := r.sweep(ctx)
	if dispatched > 0 || swept > 0 {
		zap.L().Info("[Relay] pass finished",
			zap.Int("dispatched", dispatched),
			zap.Int("swept", swept),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (r *Relay) redispatch(ctx context.Context) int {
	rows, err := r.repo.ListPendingOutbox(ctx, r.now().Add(-r.interval), r.batch)
	if err != nil {
		zap.L().Error("[Relay] failed to list pending outbox", zap.Error(err))
		return 0
	}

	n := 0
	for _, ob := range rows {
		if err := r.dispatcher.Dispatch(ctx, ob); err != nil {
			zap.L().Warn("[Relay] dispatch failed", zap.String("outbox_id", ob.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (r *Relay) sweep(ctx context.Context) int {
	rows, err := r.repo.ListStalePending(ctx, r.now().Add(-r.pendingTTL), r.batch)
	if err != nil {
		zap.L().Error("[Relay] failed to list stale reservations", zap.Error(err))
		return 0
	}

	n := 0
	for _, lic := range rows {
		if err := r.artifacts.Delete(ctx, lic.LicenceNo); err != nil {
			zap.L().Warn("[Relay] failed to delete orphaned artifact", zap.String("licence_no", lic.LicenceNo), zap.Error(err))
		}
		if err := r.repo.DeletePending(ctx, lic.ID); err != nil {
			zap.L().Warn("[Relay] failed to delete stale reservation", zap.String("licence_no", lic.LicenceNo), zap.Error(err))
			continue
		}
		n++
	}
	return n
}
