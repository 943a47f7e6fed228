package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"laundry-smart-queue/internal/model"
)

func sampleRecords() []model.UsageRecord {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	return []model.UsageRecord{
		{ID: 2, MachineID: "dryer-1", UserName: "Bob", RoomNumber: "B-2", ProgramName: "Quick Dry", ProgramDuration: 45, StartTime: start.Add(time.Hour)},
		{ID: 1, MachineID: "washer-1", UserName: "Zoë", RoomNumber: "A-15", ProgramName: "Quick Wash", ProgramDuration: 30, StartTime: start, EndTime: &end},
	}
}

func TestBuildUsageXLSX(t *testing.T) {
	data, err := BuildUsageXLSX(sampleRecords(), time.Now())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("usage")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "dryer-1", rows[1][0])
	assert.Equal(t, "running", rows[1][6])
	assert.Equal(t, "Zoë", rows[2][1])
	assert.Equal(t, "30", rows[2][4])
	assert.Equal(t, "2024-03-01 09:30", rows[2][6])
}

func TestBuildUsagePDF(t *testing.T) {
	data, err := BuildUsagePDF(sampleRecords(), time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	empty, err := BuildUsagePDF(nil, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, empty)
}
