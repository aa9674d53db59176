package worker

import (
	"context"
	"log"
	"time"

	"settlement-service/internal/broker"
	"settlement-service/internal/models"
	"settlement-service/internal/notify"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/service"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker executes email side effects decoupled from the state
// transitions that produce them: it consumes settlement events and sends
// buyer notifications. A failed send is logged and the message dropped;
// the transition itself already committed.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	mailer       notify.Mailer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, st *store.Store, mailer notify.Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    st,
		mailer:   mailer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderDelivered(w.handleOrderDelivered)
	eventHandler.OnOrderRefunded(w.handleOrderRefunded)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	contact, err := w.store.GetBuyerContact(ctx, event.BuyerID)
	if err != nil {
		w.logger.Error("Failed to look up buyer contact",
			zap.Int64("buyer_id", event.BuyerID),
			zap.Error(err))
		util.NotificationsSentTotal.WithLabelValues("auto_release_warning", "error").Inc()
		return nil
	}

	subject, body := notify.AutoReleaseWarning(contact.Name, event.OrderID, event.AutoReleaseAt)
	if err := w.mailer.Send(contact.Email, contact.Name, subject, body); err != nil {
		w.logger.Error("Failed to send auto-release warning",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		util.NotificationsSentTotal.WithLabelValues("auto_release_warning", "error").Inc()
		return nil
	}

	util.NotificationsSentTotal.WithLabelValues("auto_release_warning", "ok").Inc()
	w.logger.Info("Auto-release warning sent",
		zap.Int64("order_id", event.OrderID),
		zap.Time("auto_release_at", event.AutoReleaseAt))
	return nil
}

func (w *NotificationWorker) handleOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	contact, err := w.store.GetBuyerContact(ctx, event.BuyerID)
	if err != nil {
		w.logger.Error("Failed to look up buyer contact",
			zap.Int64("buyer_id", event.BuyerID),
			zap.Error(err))
		util.NotificationsSentTotal.WithLabelValues("refund_notice", "error").Inc()
		return nil
	}

	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return nil
	}

	subject, body := notify.RefundNotice(contact.Name, event.OrderID, event.Amount, order.Currency)
	if err := w.mailer.Send(contact.Email, contact.Name, subject, body); err != nil {
		w.logger.Error("Failed to send refund notice",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		util.NotificationsSentTotal.WithLabelValues("refund_notice", "error").Inc()
		return nil
	}

	util.NotificationsSentTotal.WithLabelValues("refund_notice", "ok").Inc()
	return nil
}

const (
	sweepLockKey = "auto-release-sweep"
	sweepBatch   = 100
)

// AutoReleaseSweeper periodically releases escrow for orders whose stored
// deadline has passed. The deadline is data on the order, not an in-memory
// timer: the process that set it may be long gone when it elapses. A Redis
// lock keeps one instance sweeping at a time; the conditional release
// write keeps even a lockless race safe.
type AutoReleaseSweeper struct {
	store    *store.Store
	redis    *redisclient.Client
	releases *service.ReleaseService
	interval time.Duration
	logger   *zap.Logger
}

// NewAutoReleaseSweeper creates a new auto-release sweeper
func NewAutoReleaseSweeper(st *store.Store, redis *redisclient.Client, releases *service.ReleaseService, interval time.Duration) *AutoReleaseSweeper {
	return &AutoReleaseSweeper{
		store:    st,
		redis:    redis,
		releases: releases,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled
func (sw *AutoReleaseSweeper) Start(ctx context.Context) error {
	log.Printf("Starting auto-release sweeper: interval=%s", sw.interval)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *AutoReleaseSweeper) sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		util.AutoReleaseSweepLatency.Observe(time.Since(start).Seconds())
	}()

	locked, err := sw.redis.AcquireLock(ctx, sweepLockKey, sw.interval)
	if err != nil {
		sw.logger.Warn("Sweep lock unavailable, skipping pass", zap.Error(err))
		return
	}
	if !locked {
		return
	}
	defer func() {
		if err := sw.redis.ReleaseLock(ctx, sweepLockKey); err != nil {
			sw.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}()

	due, err := sw.store.ListDueForAutoRelease(ctx, time.Now(), sweepBatch)
	if err != nil {
		sw.logger.Error("Failed to list due orders", zap.Error(err))
		return
	}
	util.AutoReleaseDueOrders.Set(float64(len(due)))
	if len(due) == 0 {
		return
	}

	sw.logger.Info("Auto-release sweep pass", zap.Int("due_orders", len(due)))

	for _, order := range due {
		if err := sw.releases.AutoRelease(ctx, order.ID); err != nil {
			// Conflicts mean another caller got there first; everything
			// else is logged and retried on the next pass.
			sw.logger.Warn("Auto-release failed",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}
}
