package storage

import (
	"testing"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/stretchr/testify/require"
)

func newTestDatabaseStorage(t *testing.T) *DatabaseStorage {
	t.Helper()
	db, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewDatabaseStorage(db.DB())
	require.NoError(t, err)
	return s
}

func TestDatabaseStorage(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newTestDatabaseStorage(t)
	})
}
