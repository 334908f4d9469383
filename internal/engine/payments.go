package engine

import (
	"context"

	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/stats"
	"textile-sync/internal/util"

	"go.uber.org/zap"
)

// PaymentWidget is the third-party capture widget: it resolves with a
// provider-assigned reference on user-confirmed success and errors on
// cancellation or provider failure.
type PaymentWidget interface {
	Capture(ctx context.Context, amount float64, metadata map[string]string) (reference string, err error)
}

// WithPayments attaches the payment widget.
func (e *Engine) WithPayments(widget PaymentWidget) *Engine {
	e.widget = widget
	return e
}

// PurchaseListing captures payment for a live listing and submits the
// provider reference, amount and computed commission to the remote
// settlement procedure, which is the sole writer of transaction records and
// the sole authority on duplicate references. A duplicate reference is
// resolved as success-with-existing-record, so retrying a settlement can
// never produce two transactions.
func (e *Engine) PurchaseListing(ctx context.Context, listingID string) (models.Transaction, error) {
	const op = "purchase_listing"

	actor, serr := e.requireActor(op, models.KindTransaction)
	if serr != nil {
		return models.Transaction{}, serr
	}
	if e.widget == nil {
		return models.Transaction{}, rejectErr(op, models.KindTransaction, listingID,
			"payment widget not configured")
	}

	rec, ok := e.cache.Get(models.KindListing, listingID)
	if !ok {
		return models.Transaction{}, &SyncError{Class: ClassConflict, Kind: models.KindTransaction,
			Op: op, ID: listingID, Message: "listing not found"}
	}
	listing := rec.(models.Listing)
	if listing.Status == models.ListingStatusSold {
		return models.Transaction{}, &SyncError{Class: ClassConflict, Kind: models.KindTransaction,
			Op: op, ID: listingID, Message: "listing already sold"}
	}

	ref, err := e.widget.Capture(ctx, listing.Price, map[string]string{
		"listing_id": listingID,
		"buyer_id":   actor.ID,
	})
	if err != nil {
		util.SettlementsTotal.WithLabelValues("capture_failed").Inc()
		return models.Transaction{}, rejectErr(op, models.KindTransaction, listingID, err.Error())
	}

	return e.SettlePayment(ctx, gateway.Settlement{
		Reference:  ref,
		ListingID:  listingID,
		BuyerID:    actor.ID,
		Amount:     listing.Price,
		Commission: listing.Price * stats.PlatformFeePercent(e.cache) / 100,
	})
}

// SettlePayment submits a settlement to the remote procedure and splices the
// resulting transaction. Safe to call twice with the same reference.
func (e *Engine) SettlePayment(ctx context.Context, s gateway.Settlement) (models.Transaction, error) {
	const op = "settle_payment"

	row, err := e.gw.SettlePayment(ctx, s)
	if err != nil {
		if gateway.ClassOf(err) == gateway.ClassConflict {
			// The reference was already settled. When the existing record
			// can be located this is success, not failure.
			if existing, ok := e.findSettled(ctx, s.Reference); ok {
				util.SettlementsTotal.WithLabelValues("duplicate").Inc()
				e.logger.Info("Duplicate payment reference resolved to existing transaction",
					zap.String("payment_ref", s.Reference),
					zap.String("transaction_id", existing.ID))
				e.cache.Upsert(models.KindTransaction, existing)
				return existing, nil
			}
		}
		util.SettlementsTotal.WithLabelValues("failed").Inc()
		return models.Transaction{}, mapRemote(op, models.KindTransaction, s.ListingID, err)
	}

	tx := models.NormalizeTransaction(row)
	e.cache.Upsert(models.KindTransaction, tx)

	// Mirror the settlement procedure's listing transition locally.
	if rec, ok := e.cache.Get(models.KindListing, s.ListingID); ok {
		listing := rec.(models.Listing)
		listing.Status = models.ListingStatusSold
		e.cache.Upsert(models.KindListing, listing)
	}

	util.SettlementsTotal.WithLabelValues("ok").Inc()
	return tx, nil
}

func (e *Engine) findSettled(ctx context.Context, reference string) (models.Transaction, bool) {
	rows, err := e.gw.Select(ctx, models.KindTransaction,
		gateway.Filter{Column: "payment_ref", Value: reference})
	if err != nil || len(rows) == 0 {
		return models.Transaction{}, false
	}
	return models.NormalizeTransaction(rows[0]), true
}
