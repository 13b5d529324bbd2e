package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInsertAccountUpsert tests that re-seeding an account updates in place
func TestInsertAccountUpsert(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	acc := NewTestAccount("support")
	id, err := db.InsertAccount(acc)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	acc.Server = "mail2.test.com"
	acc.Priority = 1
	id2, err := db.InsertAccount(acc)
	require.NoError(t, err)
	assert.Equal(t, id, id2, "Upsert should keep the same row")

	stored, err := db.GetAccountByName("support")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "mail2.test.com", stored.Server)
	assert.Equal(t, 1, stored.Priority)
	assert.Equal(t, "message", stored.TargetModel)
}

// TestInsertAccountUpsertIDAfterOtherInsert tests that re-seeding returns the
// re-seeded account's own id, not the rowid of the most recent insert on the
// connection
func TestInsertAccountUpsertIDAfterOtherInsert(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	alphaID, err := db.InsertAccount(NewTestAccount("alpha"))
	require.NoError(t, err)

	betaID, err := db.InsertAccount(NewTestAccount("beta"))
	require.NoError(t, err)
	require.NotEqual(t, alphaID, betaID)

	reseeded := NewTestAccount("alpha")
	reseeded.Priority = 1
	id, err := db.InsertAccount(reseeded)
	require.NoError(t, err)
	assert.Equal(t, alphaID, id, "Upsert should return alpha's id, not beta's")
}

// TestListActiveAccounts tests priority ordering and the active filter
func TestListActiveAccounts(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	low := NewTestAccount("low-priority")
	low.Priority = 9
	_, err := db.InsertAccount(low)
	require.NoError(t, err)

	high := NewTestAccount("high-priority")
	high.Priority = 1
	_, err = db.InsertAccount(high)
	require.NoError(t, err)

	disabled := NewTestAccount("disabled")
	disabled.Active = false
	_, err = db.InsertAccount(disabled)
	require.NoError(t, err)

	accounts, err := db.ListActiveAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2, "inactive accounts are skipped")
	assert.Equal(t, "high-priority", accounts[0].Name)
	assert.Equal(t, "low-priority", accounts[1].Name)
}

// TestUpdateLastFetchDate tests recording a completed cycle
func TestUpdateLastFetchDate(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	id, err := db.InsertAccount(NewTestAccount("support"))
	require.NoError(t, err)

	fetchedAt := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateLastFetchDate(id, fetchedAt))

	stored, err := db.GetAccountByName("support")
	require.NoError(t, err)
	require.True(t, stored.LastFetchDate.Valid)
	assert.True(t, fetchedAt.Equal(stored.LastFetchDate.Time))
}
