package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/mindease/internal/metrics"
	"github.com/suPer8Hu/mindease/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlertNotFound = errors.New("crisis alert not found")
	// ErrAlertInFlight means another worker holds the alert; try again later.
	ErrAlertInFlight = errors.New("crisis alert delivery in flight")
)

// DefaultAlertLease is how long a running alert stays claimed before another
// worker may take it over.
const DefaultAlertLease = 2 * time.Minute

// AlertDeliverer moves one CrisisAlert through running -> succeeded|failed.
type AlertDeliverer struct {
	repo     *Repo
	notifier notify.Notifier
	log      *zap.Logger
	lease    time.Duration
}

func NewAlertDeliverer(repo *Repo, n notify.Notifier, log *zap.Logger) *AlertDeliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertDeliverer{repo: repo, notifier: n, log: log, lease: DefaultAlertLease}
}

func (d *AlertDeliverer) WithLease(lease time.Duration) *AlertDeliverer {
	if lease > 0 {
		d.lease = lease
	}
	return d
}

// Deliver is safe to call again for the same alert: an alert that already
// succeeded is skipped, and one another worker is sending returns
// ErrAlertInFlight until its lease runs out.
func (d *AlertDeliverer) Deliver(ctx context.Context, alertID string) error {
	start := time.Now()

	moved, err := d.repo.MarkAlertRunning(ctx, alertID, start.Add(-d.lease))
	if err != nil {
		return err
	}

	alert, err := d.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
		}
		return err
	}
	if !moved {
		switch alert.Status {
		case AlertSucceeded:
			d.log.Info("alert already delivered", zap.String("alert_id", alertID))
			return nil
		case AlertRunning:
			return fmt.Errorf("%w: %s", ErrAlertInFlight, alertID)
		}
	}

	ev, err := d.repo.GetCrisisEvent(ctx, alert.EventID)
	if err != nil {
		_ = d.repo.MarkAlertFailed(ctx, alertID, "load event: "+err.Error())
		return err
	}

	err = d.notifier.Notify(ctx, notify.Payload{
		AlertID:   alert.ID,
		EventID:   ev.ID,
		UserID:    ev.UserID,
		SessionID: ev.SessionID,
		Level:     ev.Level,
		Keywords:  ev.Keywords,
		Timestamp: ev.CreatedAt,
	})
	if err != nil {
		metrics.AlertDeliveries.WithLabelValues("failed").Inc()
		if markErr := d.repo.MarkAlertFailed(ctx, alertID, err.Error()); markErr != nil {
			d.log.Error("mark alert failed", zap.String("alert_id", alertID), zap.Error(markErr))
		}
		return err
	}

	if err := d.repo.MarkAlertSucceeded(ctx, alertID); err != nil {
		return err
	}
	metrics.AlertDeliveries.WithLabelValues("succeeded").Inc()

	if cost := time.Since(start); cost > 2*time.Second {
		d.log.Warn("alert_timing", zap.String("alert_id", alertID), zap.Duration("total", cost))
	}
	return nil
}
