package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"logistics-service/internal/carriers"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
)

// PollerConfig controls how often and how widely active shipments are re-tracked
type PollerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// PollResult summarizes one poll cycle
type PollResult struct {
	Tracked int
	Skipped int
	Failed  int
}

// TrackingPoller periodically re-tracks every booked order that is still moving
type TrackingPoller struct {
	service  ShippingService
	orders   repository.OrderRepository
	couriers CourierProvider
	config   PollerConfig
	logger   *logrus.Entry
}

// NewTrackingPoller creates a new tracking poller
func NewTrackingPoller(service ShippingService, orders repository.OrderRepository, couriers CourierProvider, config PollerConfig, logger *logrus.Entry) *TrackingPoller {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &TrackingPoller{
		service:  service,
		orders:   orders,
		couriers: couriers,
		config:   config,
		logger:   logger.WithField("component", "tracking_poller"),
	}
}

// Run polls immediately and then on every interval until ctx is cancelled
func (p *TrackingPoller) Run(ctx context.Context) {
	p.logger.WithField("interval", p.config.Interval.String()).Info("Tracking poller started")

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.WithError(err).Error("Tracking poll failed")
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Tracking poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce tracks one batch of active orders. Per-order failures are counted,
// not returned; an error means the batch could not be loaded.
func (p *TrackingPoller) PollOnce(ctx context.Context) (PollResult, error) {
	orders, err := p.orders.ListTrackable(ctx, p.config.BatchSize)
	if err != nil {
		return PollResult{}, err
	}

	var tracked, skipped, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for i := range orders {
		order := &orders[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			// Settled orders are never re-tracked, whatever the listing returned
			if !order.HasShipment() || !order.ShipmentStatus.IsTrackable() {
				skipped.Add(1)
				return nil
			}
			switch err := p.trackOrder(gctx, order); {
			case err == nil:
				tracked.Add(1)
			case errors.Is(err, carriers.ErrNoTrackingData), errors.Is(err, repository.ErrStatusChanged):
				skipped.Add(1)
			default:
				failed.Add(1)
				p.logger.WithError(err).WithFields(logrus.Fields{
					"tenant_id": order.TenantID,
					"awb":       order.AWBNumber,
				}).Warn("Failed to track shipment")
			}
			return nil
		})
	}

	err = g.Wait()
	result := PollResult{
		Tracked: int(tracked.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	if len(orders) > 0 {
		p.logger.WithFields(logrus.Fields{
			"tracked": result.Tracked,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		}).Info("Tracking poll finished")
	}
	return result, err
}

func (p *TrackingPoller) trackOrder(ctx context.Context, order *models.Order) error {
	courier, err := p.couriers.ForTenant(ctx, order.TenantID)
	if err != nil {
		return err
	}
	snapshot, err := courier.TrackShipment(ctx, order.AWBNumber)
	if err != nil {
		return err
	}
	return p.service.ApplySnapshot(ctx, order, snapshot)
}
