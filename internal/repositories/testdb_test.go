package repositories

import (
	"path/filepath"
	"testing"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a throwaway sqlite database with the full schema. It
// covers the query predicates and update guards; the FOR UPDATE SKIP LOCKED
// claim path is postgres-only and exercised through the relay's store fakes.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.SetupModels(db))

	return db
}
