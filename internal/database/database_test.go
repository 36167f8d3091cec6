package database

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/assert"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(":memory:", "")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveResultInsertsThenUpdates(t *testing.T) {
	db := newTestDB(t)

	err := db.SaveResult("dock-1", 10, 10, 0, 0, map[string]string{"shift": "am"}, true)
	require.NoError(t, err)

	s, err := db.GetCurrentCount("dock-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 10, s.TotalCount)
	assert.Equal(t, "am", s.CustomFields["shift"])

	err = db.SaveResult("dock-1", 11, 10, 1, 2, map[string]string{"note": "ok"}, true)
	require.NoError(t, err)

	s2, err := db.GetCurrentCount("dock-1")
	require.NoError(t, err)
	assert.Equal(t, 11, s2.TotalCount)
	assert.Equal(t, 1, s2.DefectsCount)
	assert.Equal(t, 2, s2.CorrectCount)
	assert.Equal(t, "am", s2.CustomFields["shift"], "merge must preserve existing keys")
	assert.Equal(t, "ok", s2.CustomFields["note"])
}

func TestAtMostOneActiveSessionPerLocation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveResult("loc", 1, 1, 0, 0, nil, true))
	require.NoError(t, db.SaveResult("loc", 2, 2, 0, 0, nil, true))

	s, err := db.GetCurrentCount("loc")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalCount, "second save_result must update, not insert a sibling active row")
}

func TestSavePartResultRequiresActiveSession(t *testing.T) {
	db := newTestDB(t)
	err := db.SavePartResult("ghost", 1, 1, 0, 0)
	assert.ErrorIs(t, err, ErrStoreError)
}

func TestSavePartResultAppendsMostRecentFirst(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveResult("loc", 10, 10, 1, 2, nil, true))
	require.NoError(t, db.SavePartResult("loc", 4, 10, 1, 2))
	require.NoError(t, db.SavePartResult("loc", 6, 10, 1, 2))

	s, err := db.GetCurrentCount("loc")
	require.NoError(t, err)
	require.Len(t, s.Parts, 2)
	assert.Equal(t, 6, s.Parts[0].Current, "most recent part first")
	assert.Equal(t, 4, s.Parts[1].Current)
}

func TestCloseCurrentCountIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveResult("loc", 1, 1, 0, 0, nil, true))

	closed, err := db.CloseCurrentCount("loc")
	require.NoError(t, err)
	assert.True(t, closed)

	closed2, err := db.CloseCurrentCount("loc")
	require.NoError(t, err)
	assert.False(t, closed2, "second close must be a no-op")

	s, err := db.GetCurrentCount("loc")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetPaginatedBoundary(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.SaveResult("loc", i, i, 0, 0, nil, true))
		_, err := db.CloseCurrentCount("loc")
		require.NoError(t, err)
	}

	page, err := db.GetPaginated("loc", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)

	totalPages := TotalPages(page.Total, 2)
	lastPage, err := db.GetPaginated("loc", totalPages+1, 2)
	require.NoError(t, err)
	assert.Empty(t, lastPage.Results)
	assert.False(t, lastPage.HasNext)
}

func TestGetCountByID(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveResult("loc", 5, 5, 0, 0, nil, true))
	s, err := db.GetCurrentCount("loc")
	require.NoError(t, err)

	fetched, err := db.GetCount(s.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, s.Location, fetched.Location)

	missing, err := db.GetCount(99999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
