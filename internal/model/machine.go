package model

import "time"

// MachineType distinguishes washers from dryers. It never changes after provisioning.
type MachineType string

const (
	MachineTypeWasher MachineType = "washer"
	MachineTypeDryer  MachineType = "dryer"
)

// Valid reports whether t is a known machine type.
func (t MachineType) Valid() bool {
	return t == MachineTypeWasher || t == MachineTypeDryer
}

// MachineStatus is the lifecycle state of a machine.
type MachineStatus string

const (
	StatusAvailable MachineStatus = "available"
	StatusInUse     MachineStatus = "in-use"
	StatusDone      MachineStatus = "done"
)

// Machine is one physical appliance and the snapshot of its current cycle.
// CurrentProgramName, CurrentProgramDuration and EndTime are set together at
// start and cleared together on stop; a done machine keeps them until then.
type Machine struct {
	ID                     string        `gorm:"primaryKey;size:64" json:"id"`
	Name                   string        `gorm:"size:128;not null" json:"name"`
	Type                   MachineType   `gorm:"size:16;not null" json:"type"`
	Status                 MachineStatus `gorm:"size:16;not null;default:available;index" json:"status"`
	CurrentProgramName     *string       `gorm:"size:128" json:"current_program_name"`
	CurrentProgramDuration *int          `json:"current_program_duration"`
	EndTime                *time.Time    `json:"end_time"`
	CanPostpone            *bool         `json:"can_postpone"`
	Cycle                  int64         `gorm:"not null;default:0" json:"cycle"`
	CreatedAt              time.Time     `json:"-"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// HasProgram reports whether the machine carries a program snapshot.
func (m Machine) HasProgram() bool {
	return m.CurrentProgramName != nil && m.EndTime != nil
}

// Remaining returns the time left until EndTime, clamped at zero.
func (m Machine) Remaining(now time.Time) time.Duration {
	if m.EndTime == nil || !m.EndTime.After(now) {
		return 0
	}
	return m.EndTime.Sub(now)
}
