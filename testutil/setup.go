package testutil

import (
	"testing"
	"time"

	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/config"
	"github.com/gestia/mailroom/db"
	"github.com/gestia/mailroom/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(config.DatabaseConfig{Mode: db.ModeSQLiteMemory})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(gdb))
	return gdb
}

// SetupTestCache returns a local cache and pub/sub pair.
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := config.CacheConfig{
		LocalGCInterval: time.Minute,
		LocalPubSubBuf:  64,
	}
	c, err := cache.NewCache(cfg)
	require.NoError(t, err)
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err)
	return c, ps
}
