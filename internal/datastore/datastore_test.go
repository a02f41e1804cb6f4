package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/errors"
)

// newTestStore opens an isolated in-memory SQLite datastore.
func newTestStore(t *testing.T) Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"

	store := New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestNewReturnsNilWithoutOutput(t *testing.T) {
	t.Parallel()
	assert.Nil(t, New(&conf.Settings{}))
}

func TestSaveAndGetDetection(t *testing.T) {
	store := newTestStore(t)

	detection := &Detection{
		PlateNumber: "ABC123",
		CameraID:    1,
		ImagePath:   "upload-1-abcd1234.jpg",
	}
	require.NoError(t, store.SaveDetection(detection))
	require.NotZero(t, detection.ID)

	fetched, err := store.GetDetection(detection.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", fetched.PlateNumber)
	assert.Equal(t, uint(1), fetched.CameraID)
	assert.False(t, fetched.BlacklistFlag)
	assert.Nil(t, fetched.BlacklistID)
	assert.Nil(t, fetched.VideoPath)
	assert.False(t, fetched.Timestamp.IsZero())
}

func TestSaveDetectionWithBlacklistReference(t *testing.T) {
	store := newTestStore(t)

	entry := &BlacklistEntry{PlateNumber: "bad999", Notes: "stolen"}
	require.NoError(t, store.AddBlacklistEntry(entry))

	detection := &Detection{
		PlateNumber:   "BAD999",
		CameraID:      1,
		ImagePath:     "upload-2-efgh5678.jpg",
		BlacklistFlag: true,
		BlacklistID:   &entry.ID,
	}
	require.NoError(t, store.SaveDetection(detection))

	fetched, err := store.GetDetection(detection.ID)
	require.NoError(t, err)
	assert.True(t, fetched.BlacklistFlag)
	require.NotNil(t, fetched.Blacklist)
	assert.Equal(t, "BAD999", fetched.Blacklist.PlateNumber)
}

func TestAddBlacklistEntryNormalizesCase(t *testing.T) {
	store := newTestStore(t)

	entry := &BlacklistEntry{PlateNumber: "abc123"}
	require.NoError(t, store.AddBlacklistEntry(entry))
	assert.Equal(t, "ABC123", entry.PlateNumber)

	// Lookup is exact and case-sensitive: only the stored uppercase form hits.
	found, err := store.GetBlacklistEntryByPlate("ABC123")
	require.NoError(t, err)
	require.NotNil(t, found)

	missed, err := store.GetBlacklistEntryByPlate("abc123")
	require.NoError(t, err)
	assert.Nil(t, missed)
}

func TestAddBlacklistEntryDuplicate(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddBlacklistEntry(&BlacklistEntry{PlateNumber: "DUP111"}))

	err := store.AddBlacklistEntry(&BlacklistEntry{PlateNumber: "dup111"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConflict))
}

func TestGetBlacklistEntryByPlateMissing(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.GetBlacklistEntryByPlate("NOPE42")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDeleteBlacklistEntry(t *testing.T) {
	store := newTestStore(t)

	entry := &BlacklistEntry{PlateNumber: "GONE01"}
	require.NoError(t, store.AddBlacklistEntry(entry))
	require.NoError(t, store.DeleteBlacklistEntry(entry.ID))

	found, err := store.GetBlacklistEntryByPlate("GONE01")
	require.NoError(t, err)
	assert.Nil(t, found)

	err = store.DeleteBlacklistEntry(entry.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestDeleteBlacklistEntryKeepsDetectionHistory(t *testing.T) {
	store := newTestStore(t)

	entry := &BlacklistEntry{PlateNumber: "HIST77"}
	require.NoError(t, store.AddBlacklistEntry(entry))

	detection := &Detection{
		PlateNumber:   "HIST77",
		CameraID:      1,
		ImagePath:     "upload-3-ijkl9012.jpg",
		BlacklistFlag: true,
		BlacklistID:   &entry.ID,
	}
	require.NoError(t, store.SaveDetection(detection))
	require.NoError(t, store.DeleteBlacklistEntry(entry.ID))

	fetched, err := store.GetDetection(detection.ID)
	require.NoError(t, err)
	assert.True(t, fetched.BlacklistFlag)
	require.NotNil(t, fetched.BlacklistID)
}

func seedDetections(t *testing.T, store Interface) {
	t.Helper()
	rows := []Detection{
		{PlateNumber: "AAA111", CameraID: 1, ImagePath: "a.jpg"},
		{PlateNumber: "BBB222", CameraID: 1, ImagePath: "b.jpg", BlacklistFlag: true},
		{PlateNumber: "AAB333", CameraID: 2, ImagePath: "c.jpg"},
	}
	for i := range rows {
		require.NoError(t, store.SaveDetection(&rows[i]))
	}
}

func TestSearchDetectionsFilters(t *testing.T) {
	store := newTestStore(t)
	seedDetections(t, store)

	// Substring plate match.
	results, err := store.SearchDetections(&DetectionFilter{Plate: "AA"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Blacklisted only.
	blacklisted := true
	results, err = store.SearchDetections(&DetectionFilter{Blacklisted: &blacklisted})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "BBB222", results[0].PlateNumber)

	// Camera filter.
	camera := uint(2)
	results, err = store.SearchDetections(&DetectionFilter{CameraID: &camera})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "AAB333", results[0].PlateNumber)

	// Date window excluding everything.
	past := time.Now().Add(-48 * time.Hour)
	alsoPast := past.Add(time.Hour)
	results, err = store.SearchDetections(&DetectionFilter{StartDate: &past, EndDate: &alsoPast})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDetectionsPagination(t *testing.T) {
	store := newTestStore(t)
	seedDetections(t, store)

	page, err := store.SearchDetections(&DetectionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.SearchDetections(&DetectionFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	total, err := store.CountDetections(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestDetectionStats(t *testing.T) {
	store := newTestStore(t)
	seedDetections(t, store)

	stats, err := store.DetectionStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalDetections)
	assert.Equal(t, int64(1), stats.BlacklistedCount)
	assert.Equal(t, int64(3), stats.TodayCount)
	require.Len(t, stats.RecentAlerts, 1)
	assert.Equal(t, "BBB222", stats.RecentAlerts[0].PlateNumber)
}
