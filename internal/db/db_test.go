package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSettings tests setting and getting application settings
func TestSettings(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	// Get non-existent setting
	value, err := db.GetSetting("last_run")
	require.NoError(t, err)
	assert.Empty(t, value, "Non-existent setting should return empty string")

	// Set a setting
	err = db.SetSetting("last_run", "2026-08-28T10:00:00Z")
	require.NoError(t, err)

	// Get the setting
	value, err = db.GetSetting("last_run")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28T10:00:00Z", value)

	// Update the setting
	err = db.SetSetting("last_run", "2026-08-28T11:00:00Z")
	require.NoError(t, err)

	value, err = db.GetSetting("last_run")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28T11:00:00Z", value, "Setting should be updated")
}
