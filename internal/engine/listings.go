package engine

import (
	"context"
	"strconv"
	"time"

	"textile-sync/internal/classify"
	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/uploads"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WithUploads attaches the upload pipeline and classifier used by the
// create-listing-with-photo workflow.
func (e *Engine) WithUploads(pipeline *uploads.Pipeline, classifier classify.Classifier) *Engine {
	e.pipeline = pipeline
	e.classifier = classifier
	return e
}

// CreateListing is a Shape A create: the cache only sees the
// server-confirmed row.
func (e *Engine) CreateListing(ctx context.Context, l models.Listing) (models.Listing, error) {
	actor, serr := e.requireActor("create_listing", models.KindListing)
	if serr != nil {
		return models.Listing{}, serr
	}
	if l.Quantity < 0 || l.Price < 0 {
		return models.Listing{}, rejectErr("create_listing", models.KindListing, l.ID,
			"quantity and price must not be negative")
	}

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.OwnerID == "" {
		l.OwnerID = actor.ID
	}
	if l.Status == "" {
		l.Status = models.ListingStatusPending
	}
	if l.CreatedAt == "" {
		l.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	rec, err := e.fireAndConfirm(ctx, "create_listing", models.KindListing, l.ID,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Insert(ctx, models.KindListing, listingRow(l))
		})
	if err != nil {
		return models.Listing{}, err
	}
	return rec.(models.Listing), nil
}

// CreateListingFromPhoto runs the full intake workflow: upload the photo
// (never blocking on storage availability), classify it, default the fabric
// type and price estimate from the classification, then create. The
// classification result is returned alongside so the caller can show the
// hint.
func (e *Engine) CreateListingFromPhoto(ctx context.Context, l models.Listing, imageBytes []byte, filename string) (models.Listing, *classify.Result, error) {
	if e.pipeline == nil || e.classifier == nil {
		return models.Listing{}, nil, rejectErr("create_listing_from_photo", models.KindListing, l.ID,
			"upload pipeline not configured")
	}

	l.ImageURL = e.pipeline.Upload(ctx, filename, imageBytes)

	hint, err := e.classifier.Classify(ctx, imageBytes, filename)
	if err != nil {
		return models.Listing{}, nil, rejectErr("create_listing_from_photo", models.KindListing, l.ID, err.Error())
	}
	if l.FabricType == "" {
		l.FabricType = hint.FabricType
	}
	if l.Price == 0 {
		l.Price = hint.EstimatedValue * l.Quantity
	}

	created, err := e.CreateListing(ctx, l)
	if err != nil {
		return models.Listing{}, hint, err
	}
	return created, hint, nil
}

// EditListing is a Shape A edit. Sold listings are immutable except for
// audit fields, and quantity/price may never go negative.
func (e *Engine) EditListing(ctx context.Context, id string, patch gateway.Row) (models.Listing, error) {
	if _, serr := e.requireActor("edit_listing", models.KindListing); serr != nil {
		return models.Listing{}, serr
	}

	if rec, ok := e.cache.Get(models.KindListing, id); ok {
		if rec.(models.Listing).Status == models.ListingStatusSold {
			return models.Listing{}, &SyncError{Class: ClassConflict, Kind: models.KindListing,
				Op: "edit_listing", ID: id, Message: "listing already sold"}
		}
	}
	if negative(patch["quantity"]) {
		return models.Listing{}, rejectErr("edit_listing", models.KindListing, id, "quantity must not be negative")
	}
	if negative(patch["price"]) {
		return models.Listing{}, rejectErr("edit_listing", models.KindListing, id, "price must not be negative")
	}

	rec, err := e.fireAndConfirm(ctx, "edit_listing", models.KindListing, id,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Update(ctx, models.KindListing, id, patch)
		})
	if err != nil {
		return models.Listing{}, err
	}
	return rec.(models.Listing), nil
}

// UpdateListingStatus is a Shape A status transition (approve, reject,
// relist).
func (e *Engine) UpdateListingStatus(ctx context.Context, id, status string) (models.Listing, error) {
	if _, serr := e.requireActor("update_listing_status", models.KindListing); serr != nil {
		return models.Listing{}, serr
	}

	rec, err := e.fireAndConfirm(ctx, "update_listing_status", models.KindListing, id,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Update(ctx, models.KindListing, id, gateway.Row{"status": status})
		})
	if err != nil {
		return models.Listing{}, err
	}
	return rec.(models.Listing), nil
}

// DeleteListing is Shape A: the gateway may refuse with
// referential-constraint when transactions reference the listing, in which
// case the cache is untouched.
func (e *Engine) DeleteListing(ctx context.Context, id string) error {
	if _, serr := e.requireActor("delete_listing", models.KindListing); serr != nil {
		return serr
	}

	if err := e.gw.Delete(ctx, models.KindListing, id); err != nil {
		mapped := mapRemote("delete_listing", models.KindListing, id, err)
		e.logger.Error("Delete failed",
			zap.String("kind", models.KindListing),
			zap.String("id", id),
			zap.String("class", string(mapped.Class)),
			zap.Error(err))
		return mapped
	}

	e.cache.Remove(models.KindListing, id)
	return nil
}

// negative reports whether a patch value is a negative number under any of
// the numeric shapes a caller may hand over. Non-numeric values pass; the
// remote constraint stays authoritative.
func negative(v any) bool {
	switch n := v.(type) {
	case float64:
		return n < 0
	case float32:
		return n < 0
	case int:
		return n < 0
	case int64:
		return n < 0
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return err == nil && f < 0
	}
	return false
}

func listingRow(l models.Listing) gateway.Row {
	return gateway.Row{
		"id":          l.ID,
		"owner_id":    l.OwnerID,
		"title":       l.Title,
		"fabric_type": l.FabricType,
		"quantity":    l.Quantity,
		"price":       l.Price,
		"status":      l.Status,
		"image_url":   l.ImageURL,
		"created_at":  l.CreatedAt,
	}
}
