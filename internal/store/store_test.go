package store

import (
	"testing"

	"textile-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertInsertsAtFront(t *testing.T) {
	s := New()

	s.Upsert(models.KindListing, models.Listing{ID: "a", Title: "first"})
	s.Upsert(models.KindListing, models.Listing{ID: "b", Title: "second"})

	recs := s.All(models.KindListing)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].RecordID(), "newest record should be first")
	assert.Equal(t, "a", recs[1].RecordID())
}

func TestUpsertOverwritesById(t *testing.T) {
	s := New()

	s.Upsert(models.KindListing, models.Listing{ID: "a", Title: "draft", Quantity: 10})
	s.Upsert(models.KindListing, models.Listing{ID: "a", Title: "final"})

	require.Equal(t, 1, s.Len(models.KindListing))

	rec, ok := s.Get(models.KindListing, "a")
	require.True(t, ok)
	got := rec.(models.Listing)
	assert.Equal(t, "final", got.Title)
	assert.Zero(t, got.Quantity, "overwrite must be full, not a merge")
}

func TestReplaceAllDedupes(t *testing.T) {
	s := New()

	s.ReplaceAll(models.KindAccount, []models.Record{
		models.Account{ID: "u1", Name: "one"},
		models.Account{ID: "u2", Name: "two"},
		models.Account{ID: "u1", Name: "shadowed"},
	})

	recs := s.All(models.KindAccount)
	require.Len(t, recs, 2)
	assert.Equal(t, "one", recs[0].(models.Account).Name, "first occurrence wins")
}

func TestRemove(t *testing.T) {
	s := New()

	s.Upsert(models.KindListing, models.Listing{ID: "a"})
	s.Upsert(models.KindListing, models.Listing{ID: "b"})

	assert.True(t, s.Remove(models.KindListing, "a"))
	assert.False(t, s.Remove(models.KindListing, "a"))
	assert.Equal(t, 1, s.Len(models.KindListing))
}

func TestClear(t *testing.T) {
	s := New()

	s.Upsert(models.KindListing, models.Listing{ID: "a"})
	s.Upsert(models.KindAccount, models.Account{ID: "u"})

	s.Clear()

	assert.Zero(t, s.Len(models.KindListing))
	assert.Zero(t, s.Len(models.KindAccount))
}

func TestRecordsTyped(t *testing.T) {
	s := New()

	s.Upsert(models.KindListing, models.Listing{ID: "a", FabricType: "cotton"})
	s.Upsert(models.KindListing, models.Listing{ID: "b", FabricType: "silk"})

	listings := Records[models.Listing](s, models.KindListing)
	require.Len(t, listings, 2)
	assert.Equal(t, "silk", listings[0].FabricType)
}

func TestAllReturnsCopy(t *testing.T) {
	s := New()
	s.Upsert(models.KindListing, models.Listing{ID: "a"})

	recs := s.All(models.KindListing)
	recs[0] = models.Listing{ID: "mutated"}

	rec, ok := s.Get(models.KindListing, "a")
	require.True(t, ok)
	assert.Equal(t, "a", rec.RecordID())
}
