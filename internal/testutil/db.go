// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"laundry-smart-queue/internal/db"
	"laundry-smart-queue/internal/model"
)

var dbSeq atomic.Int64

// NewDB opens a migrated in-memory SQLite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// SeedMachines inserts available machines with the given ids. Ids starting
// with "dryer" become dryers; everything else is a washer.
func SeedMachines(t *testing.T, gormDB *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		typ := model.MachineTypeWasher
		if strings.HasPrefix(id, "dryer") {
			typ = model.MachineTypeDryer
		}
		require.NoError(t, gormDB.Create(&model.Machine{
			ID:     id,
			Name:   strings.ToUpper(id[:1]) + id[1:],
			Type:   typ,
			Status: model.StatusAvailable,
		}).Error)
	}
}
