// Package jobs holds scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAutoReleaseSchedule runs every ten minutes (seconds precision).
	DefaultAutoReleaseSchedule = "0 */10 * * * *"
	defaultAutoReleaseBatch    = 100
	autoReleaseRunTimeout      = 2 * time.Minute
)

type escrowReleaser interface {
	AutoRelease(ctx context.Context, heldFor time.Duration, batch int) (int, error)
}

// AutoReleaser releases payments that stayed HELD longer than HeldFor.
type AutoReleaser struct {
	cron     *cron.Cron
	releaser escrowReleaser
	schedule string
	heldFor  time.Duration
	batch    int
	log      logrus.FieldLogger

	mu      sync.Mutex
	running bool
}

func NewAutoReleaser(
	releaser escrowReleaser,
	schedule string,
	heldFor time.Duration,
	log logrus.FieldLogger,
) *AutoReleaser {
	if schedule == "" {
		schedule = DefaultAutoReleaseSchedule
	}
	return &AutoReleaser{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		releaser: releaser,
		schedule: schedule,
		heldFor:  heldFor,
		batch:    defaultAutoReleaseBatch,
		log:      log.WithField("job", "escrow_auto_release"),
	}
}

func (a *AutoReleaser) Start() error {
	if a.heldFor <= 0 {
		return fmt.Errorf("auto release needs a positive hold duration")
	}
	if _, err := a.cron.AddFunc(a.schedule, a.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", a.schedule, err)
	}
	a.cron.Start()
	a.log.WithFields(logrus.Fields{
		"schedule": a.schedule,
		"held_for": a.heldFor.String(),
	}).Info("escrow auto release scheduled")
	return nil
}

// Stop waits for a running release to finish.
func (a *AutoReleaser) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}

func (a *AutoReleaser) tick() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		a.log.Warn("previous auto release still running, skipping")
		return
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), autoReleaseRunTimeout)
	defer cancel()
	_, _ = a.RunOnce(ctx)
}

// RunOnce releases one batch and reports how many payments moved.
func (a *AutoReleaser) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	released, err := a.releaser.AutoRelease(ctx, a.heldFor, a.batch)
	entry := a.log.WithFields(logrus.Fields{
		"released": released,
		"took":     time.Since(started).String(),
	})
	if err != nil {
		entry.WithError(err).Error("escrow auto release failed")
		return released, err
	}
	if released > 0 {
		entry.Info("escrow auto release completed")
	} else {
		entry.Debug("escrow auto release found nothing due")
	}
	return released, nil
}
