package entry

import (
	"context"
	"testing"

	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/config"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/database"
	_ "github.com/nerrad567/lyngdorf-core/migrations"
)

// setupTestDB opens an in-memory database with the schema migrated.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func testEntry(id, mac string, source Source) *ConfigEntry {
	return &ConfigEntry{
		ID:       id,
		UniqueID: mac,
		Source:   source,
		Title:    "Living Room",
		Data: Data{
			DeviceID:     mac,
			MAC:          mac,
			Model:        "MP-60",
			Manufacturer: "Lyngdorf",
			SerialNumber: "ab123",
			Host:         "192.168.1.50",
		},
		Options: map[string]any{"zones": []any{"Main Zone", "Zone B"}},
	}
}
