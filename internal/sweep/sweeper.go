// Package sweep periodically moves overdue orders forward: vehicles that
// overstayed their window become late, and reservations nobody showed up
// for are cancelled.
package sweep

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"bpark-backend/config"
	"bpark-backend/internal/model"
	"bpark-backend/internal/notification"
)

// Engine is the part of the allocation engine the sweeper drives.
type Engine interface {
	OverdueActive(ctx context.Context) ([]model.Order, error)
	OverduePending(ctx context.Context) ([]model.Order, error)
	MarkLate(ctx context.Context, order model.Order) (bool, error)
	CancelReservation(ctx context.Context, order model.Order) (bool, error)
	NotifyOrder(ctx context.Context, kind notification.Kind, order model.Order) error
}

// Stats counts what a single sweep changed.
type Stats struct {
	Late      int
	Cancelled int
}

// Sweeper runs the overdue scan on a fixed interval.
type Sweeper struct {
	cfg    config.SweepConfig
	engine Engine
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg config.SweepConfig, engine Engine) *Sweeper {
	return &Sweeper{cfg: cfg, engine: engine}
}

// Run sweeps after the start delay and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Info("Sweep is disabled. Not starting.")
		return
	}
	log.WithFields(log.Fields{"interval": s.cfg.Interval, "delay": s.cfg.StartDelay}).Info("Starting sweep service...")

	timer := time.NewTimer(s.cfg.StartDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Sweep service shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce performs a single pass over active and pending orders. A failure
// on one order is logged and the pass continues with the next.
func (s *Sweeper) SweepOnce(ctx context.Context) Stats {
	var stats Stats

	overdue, err := s.engine.OverdueActive(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to scan for late vehicles")
	}
	for _, order := range overdue {
		moved, err := s.engine.MarkLate(ctx, order)
		if err != nil {
			log.WithError(err).WithField("order", order.OrderNumber).Error("Failed to mark order late")
			continue
		}
		if !moved {
			continue
		}
		stats.Late++
		s.notify(ctx, notification.KindLatePickup, order)
	}

	expired, err := s.engine.OverduePending(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to scan for expired reservations")
	}
	for _, order := range expired {
		moved, err := s.engine.CancelReservation(ctx, order)
		if err != nil {
			log.WithError(err).WithField("order", order.OrderNumber).Error("Failed to cancel reservation")
			continue
		}
		if !moved {
			continue
		}
		stats.Cancelled++
		s.notify(ctx, notification.KindCancelOrder, order)
	}

	if stats.Late > 0 || stats.Cancelled > 0 {
		log.WithFields(log.Fields{"late": stats.Late, "cancelled": stats.Cancelled}).Info("Sweep cycle finished.")
	}
	return stats
}

func (s *Sweeper) notify(ctx context.Context, kind notification.Kind, order model.Order) {
	if err := s.engine.NotifyOrder(ctx, kind, order); err != nil {
		log.WithError(err).WithField("order", order.OrderNumber).Warn("Could not notify subscriber")
	}
}
