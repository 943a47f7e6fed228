package store

import (
	"time"

	"laundry-smart-queue/internal/model"
)

// StartCycleParams describes a cycle to start. The program fields are a
// snapshot; later catalog changes do not affect a running cycle.
type StartCycleParams struct {
	MachineID       string
	ProgramName     string
	ProgramDuration int // minutes
	UserID          *string
	UserName        string
	RoomNumber      string
	StartedAt       time.Time
}

// EndTime is when the started cycle is due to finish.
func (p StartCycleParams) EndTime() time.Time {
	return p.StartedAt.Add(time.Duration(p.ProgramDuration) * time.Minute)
}

// StartResult is the machine row and ledger entry written by StartCycle.
type StartResult struct {
	Machine model.Machine
	Usage   model.UsageRecord
}

// StopResult reports what StopCycle changed.
type StopResult struct {
	Machine        model.Machine
	PreviousStatus model.MachineStatus
	ClosedUsage    int64
}

// UsageFilter selects ledger entries, newest first.
type UsageFilter struct {
	Limit     int
	MachineID string
}
