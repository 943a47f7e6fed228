// Package catalog holds the fixed wash and dry programs a machine can run.
package catalog

import (
	"time"

	"laundry-smart-queue/internal/model"
)

// Program is a named cycle definition with a fixed duration in minutes.
type Program struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Duration int               `json:"duration"`
	Type     model.MachineType `json:"type"`
}

// DurationTime returns the program duration as a time.Duration.
func (p Program) DurationTime() time.Duration {
	return time.Duration(p.Duration) * time.Minute
}

var washPrograms = []Program{
	{ID: "quick-30", Name: "Quick Wash", Duration: 30, Type: model.MachineTypeWasher},
	{ID: "normal-60", Name: "Normal Wash", Duration: 60, Type: model.MachineTypeWasher},
	{ID: "eco-90", Name: "Eco Wash", Duration: 90, Type: model.MachineTypeWasher},
	{ID: "intensive-120", Name: "Intensive Wash", Duration: 120, Type: model.MachineTypeWasher},
}

var dryPrograms = []Program{
	{ID: "quick-45", Name: "Quick Dry", Duration: 45, Type: model.MachineTypeDryer},
	{ID: "normal-75", Name: "Normal Dry", Duration: 75, Type: model.MachineTypeDryer},
	{ID: "delicate-60", Name: "Delicate Dry", Duration: 60, Type: model.MachineTypeDryer},
}

// ForType returns a copy of the programs available on the given machine type.
func ForType(t model.MachineType) []Program {
	switch t {
	case model.MachineTypeWasher:
		return append([]Program(nil), washPrograms...)
	case model.MachineTypeDryer:
		return append([]Program(nil), dryPrograms...)
	}
	return nil
}

// All returns every program, washers first.
func All() []Program {
	all := make([]Program, 0, len(washPrograms)+len(dryPrograms))
	all = append(all, washPrograms...)
	return append(all, dryPrograms...)
}

// Lookup finds a program by id.
func Lookup(id string) (Program, bool) {
	for _, p := range washPrograms {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range dryPrograms {
		if p.ID == id {
			return p, true
		}
	}
	return Program{}, false
}
