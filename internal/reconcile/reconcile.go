// Package reconcile re-derives completion timers from persisted end times.
// It covers process restarts and cycles started by other instances.
package reconcile

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"laundry-smart-queue/internal/model"
)

// Lifecycle is the part of the laundry service the reconciler drives.
type Lifecycle interface {
	ActiveCycles(ctx context.Context) ([]model.Machine, error)
	EnsureArmed(m model.Machine) bool
	Complete(ctx context.Context, machineID string, cycle int64) (bool, error)
}

// Result summarises one sweep.
type Result struct {
	Active    int
	Armed     int
	Completed int
	Failed    int
}

// Service periodically sweeps in-use machines.
type Service struct {
	lifecycle Lifecycle
	interval  time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewService creates a reconciler sweeping every interval.
func NewService(l Lifecycle, interval time.Duration, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		lifecycle: l,
		interval:  interval,
		now:       time.Now,
		log:       log.WithField("component", "reconciler"),
	}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.log.WithField("interval", s.interval).Info("starting reconciler")

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciler shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce completes overdue cycles and arms timers for running ones that
// have none in this process.
func (s *Service) SweepOnce(ctx context.Context) Result {
	var res Result

	active, err := s.lifecycle.ActiveCycles(ctx)
	if err != nil {
		s.log.WithError(err).Error("listing active cycles failed")
		res.Failed++
		return res
	}
	res.Active = len(active)

	now := s.now()
	for _, m := range active {
		if m.EndTime == nil {
			s.log.WithField("machine_id", m.ID).Warn("in-use machine without end time")
			continue
		}
		if !m.EndTime.After(now) {
			ok, err := s.lifecycle.Complete(ctx, m.ID, m.Cycle)
			if err != nil {
				res.Failed++
				continue
			}
			if ok {
				res.Completed++
			}
			continue
		}
		if s.lifecycle.EnsureArmed(m) {
			res.Armed++
		}
	}

	if res.Completed > 0 || res.Armed > 0 || res.Failed > 0 {
		s.log.WithFields(logrus.Fields{
			"active":    res.Active,
			"armed":     res.Armed,
			"completed": res.Completed,
			"failed":    res.Failed,
		}).Info("reconcile sweep finished")
	}
	return res
}
