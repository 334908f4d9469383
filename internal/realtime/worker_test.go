package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, e ChangeEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestApplyInsertNormalizes(t *testing.T) {
	cache := store.New()
	a := NewApplier(cache)

	err := a.HandleMessage(context.Background(), message(t, ChangeEvent{
		EventID:  "e1",
		Kind:     models.KindListing,
		Op:       OpInsert,
		RecordID: "l1",
		Row:      gateway.Row{"id": "l1", "title": "Cotton lot"},
	}))
	require.NoError(t, err)

	rec, ok := cache.Get(models.KindListing, "l1")
	require.True(t, ok)
	assert.Equal(t, models.ListingStatusPending, rec.(models.Listing).Status)
}

func TestApplyUpdateOverwrites(t *testing.T) {
	cache := store.New()
	cache.Upsert(models.KindListing, models.Listing{ID: "l1", Status: models.ListingStatusPending})

	a := NewApplier(cache)
	require.NoError(t, a.Apply(ChangeEvent{
		Kind:     models.KindListing,
		Op:       OpUpdate,
		RecordID: "l1",
		Row:      gateway.Row{"id": "l1", "status": models.ListingStatusLive},
	}))

	rec, _ := cache.Get(models.KindListing, "l1")
	assert.Equal(t, models.ListingStatusLive, rec.(models.Listing).Status)
}

func TestApplyDelete(t *testing.T) {
	cache := store.New()
	cache.Upsert(models.KindListing, models.Listing{ID: "l1"})

	a := NewApplier(cache)
	require.NoError(t, a.Apply(ChangeEvent{Kind: models.KindListing, Op: OpDelete, RecordID: "l1"}))

	assert.Zero(t, cache.Len(models.KindListing))
}

func TestApplyUnknownKind(t *testing.T) {
	a := NewApplier(store.New())
	err := a.Apply(ChangeEvent{Kind: "widgets", Op: OpInsert, Row: gateway.Row{"id": "x"}})
	assert.Error(t, err)
}
