// Package laundry implements the machine lifecycle: starting a program,
// completing it when its timer fires, and stopping it.
package laundry

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/catalog"
	"laundry-smart-queue/internal/feed"
	"laundry-smart-queue/internal/metrics"
	"laundry-smart-queue/internal/model"
	"laundry-smart-queue/internal/parse"
	"laundry-smart-queue/internal/scheduler"
	"laundry-smart-queue/internal/store"
)

const (
	DefaultUsageLimit = 50
	MaxUsageLimit     = 500
)

// StopPolicy decides who may stop a running machine without admin rights.
type StopPolicy string

const (
	StopByAnyone StopPolicy = "anyone"
	StopByOwner  StopPolicy = "owner"
)

// Notifier is told about machines whose cycle just completed.
type Notifier interface {
	Dispatch(machineID string)
}

// StartRequest is the user input for StartProgram.
type StartRequest struct {
	ProgramID  string
	UserName   string
	RoomNumber string
}

// Service orchestrates lifecycle transitions over a Store.
type Service struct {
	store    store.Store
	pub      feed.Publisher
	sched    *scheduler.Scheduler
	notifier Notifier
	policy   StopPolicy
	now      func() time.Time
	log      logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithStopPolicy sets the self-service stop policy. The default is StopByAnyone.
func WithStopPolicy(p StopPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithNotifier sets the receiver of completion events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service. Completion timers are owned by the service
// and stopped by Close.
func NewService(st store.Store, pub feed.Publisher, opts ...Option) *Service {
	s := &Service{
		store:  st,
		pub:    pub,
		policy: StopByAnyone,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = scheduler.New(func(machineID string, cycle int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Complete(ctx, machineID, cycle)
	})
	return s
}

// Close cancels all pending completion timers.
func (s *Service) Close() {
	s.sched.Stop()
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Programs returns the catalog for t, or every program when t is empty.
func (s *Service) Programs(t model.MachineType) []catalog.Program {
	if t == "" {
		return catalog.All()
	}
	return catalog.ForType(t)
}

func (s *Service) ListMachines(ctx context.Context) ([]model.Machine, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, persistence("list machines", err)
	}
	return machines, nil
}

func (s *Service) GetMachine(ctx context.Context, id string) (model.Machine, error) {
	m, err := s.store.GetMachine(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Machine{}, ErrNotFound
	}
	if err != nil {
		return model.Machine{}, persistence("get machine", err)
	}
	return m, nil
}

// ListUsage returns ledger entries newest first. The limit defaults to
// DefaultUsageLimit and is capped at MaxUsageLimit.
func (s *Service) ListUsage(ctx context.Context, f store.UsageFilter) ([]model.UsageRecord, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultUsageLimit
	case f.Limit > MaxUsageLimit:
		f.Limit = MaxUsageLimit
	}
	records, err := s.store.ListUsage(ctx, f)
	if err != nil {
		return nil, persistence("list usage", err)
	}
	return records, nil
}

// StartProgram validates the request and moves an available machine to
// in-use. Of concurrent starts on one machine exactly one succeeds; the
// others get ErrConflict.
func (s *Service) StartProgram(ctx context.Context, sess auth.Session, machineID string, req StartRequest) (model.Machine, error) {
	userName, err := parse.UserName(req.UserName)
	if err != nil {
		return model.Machine{}, validation(err)
	}
	room, err := parse.RoomNumber(req.RoomNumber)
	if err != nil {
		return model.Machine{}, validation(err)
	}
	program, ok := catalog.Lookup(req.ProgramID)
	if !ok {
		return model.Machine{}, &ValidationError{Field: "program_id", Message: "Please select a program"}
	}

	machine, err := s.GetMachine(ctx, machineID)
	if err != nil {
		return model.Machine{}, err
	}
	if program.Type != machine.Type {
		return model.Machine{}, &ValidationError{Field: "program_id", Message: "Program does not match machine type"}
	}

	params := store.StartCycleParams{
		MachineID:       machineID,
		ProgramName:     program.Name,
		ProgramDuration: program.Duration,
		UserName:        userName,
		RoomNumber:      room,
		StartedAt:       s.clock(),
	}
	if sess.UserID != "" {
		uid := sess.UserID
		params.UserID = &uid
	}

	res, err := s.store.StartCycle(ctx, params)
	switch {
	case errors.Is(err, store.ErrConflict):
		metrics.IncStartConflict()
		return model.Machine{}, ErrConflict
	case errors.Is(err, store.ErrNotFound):
		return model.Machine{}, ErrNotFound
	case err != nil:
		s.log.WithError(err).WithField("machine_id", machineID).Error("start failed")
		return model.Machine{}, persistence("start program", err)
	}

	s.sched.Arm(machineID, res.Machine.Cycle, *res.Machine.EndTime)
	metrics.IncCycleStarted(string(res.Machine.Type))
	s.publish(machineID, true)

	s.log.WithFields(logrus.Fields{
		"machine_id": machineID,
		"cycle":      res.Machine.Cycle,
		"program":    program.ID,
		"end_time":   res.Machine.EndTime.Format(time.RFC3339),
	}).Info("cycle started")
	return res.Machine, nil
}

// StopProgram returns the machine to available on behalf of a user, subject
// to the stop policy. Stopping an available machine succeeds without changes.
func (s *Service) StopProgram(ctx context.Context, sess auth.Session, machineID string) (model.Machine, error) {
	if s.policy == StopByOwner && !sess.IsAdmin() {
		open, err := s.store.OpenUsage(ctx, machineID)
		if err != nil {
			return model.Machine{}, persistence("check owner", err)
		}
		if open != nil && (open.UserID == nil || *open.UserID != sess.UserID) {
			return model.Machine{}, ErrForbidden
		}
	}
	return s.stop(ctx, machineID, "user")
}

// ForceStop is the operator variant of StopProgram. It requires an admin session.
func (s *Service) ForceStop(ctx context.Context, sess auth.Session, machineID string) (model.Machine, error) {
	if !sess.IsAdmin() {
		return model.Machine{}, ErrForbidden
	}
	return s.stop(ctx, machineID, "admin")
}

func (s *Service) stop(ctx context.Context, machineID, actor string) (model.Machine, error) {
	res, err := s.store.StopCycle(ctx, machineID, s.clock())
	if errors.Is(err, store.ErrNotFound) {
		return model.Machine{}, ErrNotFound
	}
	if err != nil {
		s.log.WithError(err).WithField("machine_id", machineID).Error("stop failed")
		return model.Machine{}, persistence("stop program", err)
	}

	// A start racing in after the commit may already have armed the next cycle.
	s.sched.CancelCycle(machineID, res.Machine.Cycle)
	metrics.IncCycleStopped(actor)
	s.publish(machineID, res.ClosedUsage > 0)

	s.log.WithFields(logrus.Fields{
		"machine_id": machineID,
		"previous":   res.PreviousStatus,
		"actor":      actor,
	}).Info("machine stopped")
	return res.Machine, nil
}

// Complete marks cycle on machineID as done. It reports false when the cycle
// was already stopped, completed or replaced; that case is not an error.
func (s *Service) Complete(ctx context.Context, machineID string, cycle int64) (bool, error) {
	log := s.log.WithFields(logrus.Fields{"machine_id": machineID, "cycle": cycle})

	ok, err := s.store.CompleteCycle(ctx, machineID, cycle, s.clock())
	if err != nil {
		log.WithError(err).Error("completion write failed; leaving it to the reconciler")
		return false, persistence("complete cycle", err)
	}
	if !ok {
		metrics.IncStaleTimerFire()
		log.Debug("completion superseded")
		return false, nil
	}

	s.sched.CancelCycle(machineID, cycle)
	metrics.IncCycleCompleted()
	s.publish(machineID, true)
	if s.notifier != nil {
		s.notifier.Dispatch(machineID)
	}
	log.Info("cycle completed")
	return true, nil
}

// ActiveCycles lists machines that are currently in use.
func (s *Service) ActiveCycles(ctx context.Context) ([]model.Machine, error) {
	machines, err := s.store.ActiveCycles(ctx)
	if err != nil {
		return nil, persistence("list active cycles", err)
	}
	return machines, nil
}

// EnsureArmed arms a completion timer for an in-use machine unless one for
// the same cycle is already pending. It reports whether a timer was armed.
func (s *Service) EnsureArmed(m model.Machine) bool {
	if m.Status != model.StatusInUse || m.EndTime == nil {
		return false
	}
	if cycle, ok := s.sched.Pending(m.ID); ok && cycle == m.Cycle {
		return false
	}
	s.sched.Arm(m.ID, m.Cycle, *m.EndTime)
	return true
}

// PendingTimers returns the number of armed completion timers.
func (s *Service) PendingTimers() int {
	return s.sched.Len()
}

// Provision creates machines or updates their name and type.
func (s *Service) Provision(ctx context.Context, machines []model.Machine) error {
	for _, m := range machines {
		if !m.Type.Valid() {
			return &ValidationError{Field: "type", Message: "machine " + m.ID + " has unknown type " + string(m.Type)}
		}
	}
	if err := s.store.UpsertMachines(ctx, machines); err != nil {
		return persistence("provision machines", err)
	}
	for _, m := range machines {
		s.publish(m.ID, false)
	}
	return nil
}

func (s *Service) publish(machineID string, usage bool) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(feed.MachineChanged(machineID))
	if usage {
		s.pub.Publish(feed.UsageChanged(machineID))
	}
}

func validation(err error) error {
	var fe *parse.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Message: fe.Message}
	}
	return &ValidationError{Field: "request", Message: err.Error()}
}
