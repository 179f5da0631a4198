package database

import (
	"testing"

	"github.com/kisanmitra/backend/internal/config"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemoryMigratesAllTables(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	for _, model := range []interface{}{
		&models.User{}, &models.Post{}, &models.Comment{}, &models.Group{},
		&models.GroupMember{}, &models.FeedPreference{}, &models.AnalyticsEvent{},
	} {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
}

func TestOpenInMemoryIsolated(t *testing.T) {
	a, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(a)
	b, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(b)

	require.NoError(t, a.Create(&models.User{Name: "Asha", Crops: models.StringList{"wheat"}}).Error)

	var count int64
	b.Model(&models.User{}).Count(&count)
	assert.Zero(t, count)

	var u models.User
	require.NoError(t, a.First(&u).Error)
	assert.Equal(t, models.StringList{"wheat"}, u.Crops)
	assert.Equal(t, models.RoleFarmer, u.Role)
}

func TestOpenSQLiteFile(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: t.TempDir() + "/test.db"}, false, false)
	require.NoError(t, err)
	defer Close(db)
	require.NoError(t, Migrate(db))
}

func TestMigrateNilDB(t *testing.T) {
	assert.Error(t, Migrate(nil))
}
