package model

import "time"

// UsageRecord is one entry of the usage ledger. It is appended when a cycle
// starts and EndTime is set exactly once, when the cycle completes or is stopped.
type UsageRecord struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID       string     `gorm:"size:64;not null;index:idx_usage_machine_open,priority:1" json:"machine_id"`
	UserID          *string    `gorm:"size:128" json:"user_id,omitempty"`
	UserName        string     `gorm:"size:100;not null" json:"user_name"`
	RoomNumber      string     `gorm:"size:10;not null" json:"room_number"`
	ProgramName     string     `gorm:"size:128;not null" json:"program_name"`
	ProgramDuration int        `gorm:"not null" json:"program_duration"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         *time.Time `gorm:"index:idx_usage_machine_open,priority:2" json:"end_time"`
}

// TableName keeps the ledger table name used by existing clients.
func (UsageRecord) TableName() string { return "machine_usage" }
