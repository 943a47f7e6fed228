package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-smart-queue/internal/feed"
	"laundry-smart-queue/internal/model"
)

// Store defines the persistence operations of the laundry service.
type Store interface {
	ListMachines(ctx context.Context) ([]model.Machine, error)
	GetMachine(ctx context.Context, id string) (model.Machine, error)
	UpsertMachines(ctx context.Context, machines []model.Machine) error

	StartCycle(ctx context.Context, p StartCycleParams) (StartResult, error)
	CompleteCycle(ctx context.Context, machineID string, cycle int64, at time.Time) (bool, error)
	StopCycle(ctx context.Context, machineID string, at time.Time) (StopResult, error)
	ActiveCycles(ctx context.Context) ([]model.Machine, error)

	OpenUsage(ctx context.Context, machineID string) (*model.UsageRecord, error)
	ListUsage(ctx context.Context, f UsageFilter) ([]model.UsageRecord, error)

	SaveSubscription(ctx context.Context, sub model.PushSubscription, machineIDs []string) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error)

	Ping(ctx context.Context) error
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithPGNotify makes every write transaction emit a pg_notify on feed.PGChannel
// so other instances learn about the change.
func WithPGNotify() Option {
	return func(s *gormStore) { s.pgNotify = true }
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db       *gorm.DB
	pgNotify bool
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).First(&machine, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Machine{}, ErrNotFound
	}
	if err != nil {
		return model.Machine{}, fmt.Errorf("failed to get machine %s: %w", id, err)
	}
	return machine, nil
}

// UpsertMachines provisions machines. Only name and type are written for
// existing rows; lifecycle columns are never touched.
func (s *gormStore) UpsertMachines(ctx context.Context, machines []model.Machine) error {
	if len(machines) == 0 {
		return nil
	}
	for i := range machines {
		if machines[i].Status == "" {
			machines[i].Status = model.StatusAvailable
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "type", "updated_at"}),
		}).Create(&machines).Error; err != nil {
			return fmt.Errorf("batch upsert machines failed: %w", err)
		}
		return s.notify(tx, feed.MachineChanged(""))
	})
}

// StartCycle moves an available machine to in-use and appends the ledger
// entry in the same transaction. The status check is part of the UPDATE, so
// of two concurrent starts exactly one matches the row.
func (s *gormStore) StartCycle(ctx context.Context, p StartCycleParams) (StartResult, error) {
	var res StartResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&model.Machine{}).
			Where("id = ? AND status = ?", p.MachineID, model.StatusAvailable).
			Updates(map[string]any{
				"status":                   model.StatusInUse,
				"current_program_name":     p.ProgramName,
				"current_program_duration": p.ProgramDuration,
				"end_time":                 p.EndTime(),
				"can_postpone":             true,
				"cycle":                    gorm.Expr("cycle + 1"),
			})
		if update.Error != nil {
			return fmt.Errorf("failed to start cycle on machine %s: %w", p.MachineID, update.Error)
		}
		if update.RowsAffected == 0 {
			return missingOr(tx, p.MachineID, ErrConflict)
		}

		if err := tx.First(&res.Machine, "id = ?", p.MachineID).Error; err != nil {
			return fmt.Errorf("failed to reload machine %s: %w", p.MachineID, err)
		}

		res.Usage = model.UsageRecord{
			MachineID:       p.MachineID,
			UserID:          p.UserID,
			UserName:        p.UserName,
			RoomNumber:      p.RoomNumber,
			ProgramName:     p.ProgramName,
			ProgramDuration: p.ProgramDuration,
			StartTime:       p.StartedAt,
		}
		if err := tx.Create(&res.Usage).Error; err != nil {
			return fmt.Errorf("failed to record usage for machine %s: %w", p.MachineID, err)
		}

		if err := s.notify(tx, feed.MachineChanged(p.MachineID)); err != nil {
			return err
		}
		return s.notify(tx, feed.UsageChanged(p.MachineID))
	})
	if err != nil {
		return StartResult{}, err
	}
	return res, nil
}

// CompleteCycle flips machineID to done if it is still running the given
// cycle, and closes its open ledger entry. It reports false when the cycle
// was superseded by a stop or a newer start.
func (s *gormStore) CompleteCycle(ctx context.Context, machineID string, cycle int64, at time.Time) (bool, error) {
	completed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&model.Machine{}).
			Where("id = ? AND status = ? AND cycle = ?", machineID, model.StatusInUse, cycle).
			Update("status", model.StatusDone)
		if update.Error != nil {
			return fmt.Errorf("failed to complete cycle %d on machine %s: %w", cycle, machineID, update.Error)
		}
		if update.RowsAffected == 0 {
			return nil
		}
		completed = true

		if _, err := closeOpenUsage(tx, machineID, at); err != nil {
			return err
		}
		if err := s.notify(tx, feed.MachineChanged(machineID)); err != nil {
			return err
		}
		return s.notify(tx, feed.UsageChanged(machineID))
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// StopCycle returns machineID to available, clears the cycle snapshot and
// closes any open ledger entry. Stopping an available machine is a no-op
// that still succeeds.
func (s *gormStore) StopCycle(ctx context.Context, machineID string, at time.Time) (StopResult, error) {
	var res StopResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Machine
		err := tx.First(&current, "id = ?", machineID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load machine %s: %w", machineID, err)
		}
		res.PreviousStatus = current.Status

		if err := tx.Model(&model.Machine{}).
			Where("id = ?", machineID).
			Updates(map[string]any{
				"status":                   model.StatusAvailable,
				"current_program_name":     nil,
				"current_program_duration": nil,
				"end_time":                 nil,
				"can_postpone":             nil,
			}).Error; err != nil {
			return fmt.Errorf("failed to stop machine %s: %w", machineID, err)
		}

		closed, err := closeOpenUsage(tx, machineID, at)
		if err != nil {
			return err
		}
		res.ClosedUsage = closed

		if err := tx.First(&res.Machine, "id = ?", machineID).Error; err != nil {
			return fmt.Errorf("failed to reload machine %s: %w", machineID, err)
		}

		if err := s.notify(tx, feed.MachineChanged(machineID)); err != nil {
			return err
		}
		if closed > 0 {
			return s.notify(tx, feed.UsageChanged(machineID))
		}
		return nil
	})
	if err != nil {
		return StopResult{}, err
	}
	return res, nil
}

// ActiveCycles lists machines currently in use.
func (s *gormStore) ActiveCycles(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusInUse).
		Order("end_time").
		Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list active cycles: %w", err)
	}
	return machines, nil
}

// OpenUsage returns the newest ledger entry of machineID without an end time, or nil.
func (s *gormStore) OpenUsage(ctx context.Context, machineID string) (*model.UsageRecord, error) {
	var records []model.UsageRecord
	if err := s.db.WithContext(ctx).
		Where("machine_id = ? AND end_time IS NULL", machineID).
		Order("start_time DESC").
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch open usage for machine %s: %w", machineID, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *gormStore) ListUsage(ctx context.Context, f UsageFilter) ([]model.UsageRecord, error) {
	q := s.db.WithContext(ctx).Order("start_time DESC").Order("id DESC")
	if f.MachineID != "" {
		q = q.Where("machine_id = ?", f.MachineID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var records []model.UsageRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return records, nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- helpers ---

func closeOpenUsage(tx *gorm.DB, machineID string, at time.Time) (int64, error) {
	res := tx.Model(&model.UsageRecord{}).
		Where("machine_id = ? AND end_time IS NULL", machineID).
		Update("end_time", at)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to close usage for machine %s: %w", machineID, res.Error)
	}
	return res.RowsAffected, nil
}

// missingOr distinguishes an unknown machine from one in the wrong state
// after a conditional update matched no rows.
func missingOr(tx *gorm.DB, machineID string, err error) error {
	var n int64
	if cerr := tx.Model(&model.Machine{}).Where("id = ?", machineID).Count(&n).Error; cerr != nil {
		return fmt.Errorf("failed to check machine %s: %w", machineID, cerr)
	}
	if n == 0 {
		return ErrNotFound
	}
	return err
}

func (s *gormStore) notify(tx *gorm.DB, ev feed.Event) error {
	if !s.pgNotify {
		return nil
	}
	if err := tx.Exec("SELECT pg_notify(?, ?)", feed.PGChannel, ev.Payload()).Error; err != nil {
		return fmt.Errorf("failed to notify change: %w", err)
	}
	return nil
}
