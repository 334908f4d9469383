package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is an in-memory Gateway with failure injection.
type fakeGateway struct {
	mu sync.Mutex

	rows map[string][]gateway.Row // kind -> rows

	unknownFields map[string]bool // patch fields answered with schema-mismatch
	hangUpdate    bool
	updateErr     error
	deleteErr     error

	updateAttempts int
	onUpdate       func() // runs at the start of every Update call

	settled map[string]gateway.Row // payment_ref -> transaction row
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		rows:          make(map[string][]gateway.Row),
		unknownFields: make(map[string]bool),
		settled:       make(map[string]gateway.Row),
	}
}

func (g *fakeGateway) seed(kind string, rows ...gateway.Row) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[kind] = append(g.rows[kind], rows...)
}

func (g *fakeGateway) Select(ctx context.Context, kind string, f gateway.Filter) ([]gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []gateway.Row
	for _, r := range g.rows[kind] {
		if f.Column == "" || r[f.Column] == f.Value {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *fakeGateway) Insert(ctx context.Context, kind string, row gateway.Row) (gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[kind] = append(g.rows[kind], row)
	return row, nil
}

func (g *fakeGateway) Update(ctx context.Context, kind, id string, patch gateway.Row) (gateway.Row, error) {
	if g.onUpdate != nil {
		g.onUpdate()
	}
	if g.hangUpdate {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateAttempts++

	if g.updateErr != nil {
		return nil, g.updateErr
	}
	for field := range patch {
		if g.unknownFields[field] {
			return nil, &gateway.Error{
				Class:   gateway.ClassSchemaMismatch,
				Field:   field,
				Message: fmt.Sprintf("column %q does not exist", field),
			}
		}
	}

	for i, r := range g.rows[kind] {
		if r["id"] == id {
			merged := gateway.Row{}
			for k, v := range r {
				merged[k] = v
			}
			for k, v := range patch {
				merged[k] = v
			}
			g.rows[kind][i] = merged
			return merged, nil
		}
	}

	created := gateway.Row{"id": id}
	for k, v := range patch {
		created[k] = v
	}
	g.rows[kind] = append(g.rows[kind], created)
	return created, nil
}

func (g *fakeGateway) Delete(ctx context.Context, kind, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deleteErr != nil {
		return g.deleteErr
	}
	for i, r := range g.rows[kind] {
		if r["id"] == id {
			g.rows[kind] = append(g.rows[kind][:i], g.rows[kind][i+1:]...)
			return nil
		}
	}
	return &gateway.Error{Class: gateway.ClassNotFound, Message: "no such row"}
}

func (g *fakeGateway) SettlePayment(ctx context.Context, s gateway.Settlement) (gateway.Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.settled[s.Reference]; dup {
		return nil, &gateway.Error{Class: gateway.ClassConflict, Message: "duplicate payment reference"}
	}

	row := gateway.Row{
		"id":          fmt.Sprintf("tx-%d", len(g.settled)+1),
		"listing_id":  s.ListingID,
		"buyer_id":    s.BuyerID,
		"amount":      s.Amount,
		"commission":  s.Commission,
		"status":      models.TransactionStatusCompleted,
		"payment_ref": s.Reference,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}
	g.settled[s.Reference] = row
	g.rows[models.KindTransaction] = append(g.rows[models.KindTransaction], row)
	return row, nil
}

func buyerActor() *models.Actor {
	return &models.Actor{ID: "buyer-1", Role: models.RoleBuyer, Authenticity: models.AuthenticityAuthenticated}
}

func adminActor() *models.Actor {
	return &models.Actor{ID: "admin-1", Role: models.RoleAdmin, Authenticity: models.AuthenticityAuthenticated}
}

func newTestEngine(gw gateway.Gateway, actor *models.Actor) (*Engine, *store.Store) {
	cache := store.New()
	e := New(gw, cache, func() *models.Actor { return actor }, 100*time.Millisecond, 50*time.Millisecond)
	return e, cache
}

func TestSelfHealingStripsExactlyOffendingField(t *testing.T) {
	gw := newFakeGateway()
	gw.unknownFields["company"] = true // remote schema not yet migrated
	gw.seed(models.KindAccount, gateway.Row{"id": "u1", "name": "Old Name", "role": models.RoleFactory})

	e, cache := newTestEngine(gw, buyerActor())
	require.NoError(t, e.FetchKind(context.Background(), models.KindAccount))

	got, err := e.UpdateProfile(context.Background(), "u1", gateway.Row{
		"name":    "New Name",
		"company": "Acme Mills",
	})
	require.NoError(t, err, "commit must succeed after stripping the unrecognized field")
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, 2, gw.updateAttempts, "one strip, one retry")

	rec, ok := cache.Get(models.KindAccount, "u1")
	require.True(t, ok)
	assert.Equal(t, "New Name", rec.(models.Account).Name)
}

func TestSelfHealingBoundedByPayloadSize(t *testing.T) {
	gw := newFakeGateway()
	gw.unknownFields["a_field"] = true
	gw.unknownFields["b_field"] = true

	e, _ := newTestEngine(gw, buyerActor())

	_, err := e.UpdateProfile(context.Background(), "u1", gateway.Row{
		"a_field": "x",
		"b_field": "y",
	})
	require.Error(t, err)
	assert.Equal(t, ClassSchemaDriftExhausted, ClassOf(err))
	assert.LessOrEqual(t, gw.updateAttempts, 2, "never more attempts than payload fields")
}

func TestOptimisticVisibilityBeforeCommit(t *testing.T) {
	gw := newFakeGateway()
	e, cache := newTestEngine(gw, buyerActor())

	var observedDuringCommit string
	gw.onUpdate = func() {
		if rec, ok := cache.Get(models.KindAccount, "u1"); ok {
			observedDuringCommit = rec.(models.Account).Name
		}
	}

	_, err := e.UpdateProfile(context.Background(), "u1", gateway.Row{"name": "Visible Early"})
	require.NoError(t, err)
	assert.Equal(t, "Visible Early", observedDuringCommit,
		"optimistic splice must be visible before the network call resolves")
}

func TestNoSilentRevertOnTimeout(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(models.KindAccount, gateway.Row{"id": "u1", "name": "Before"})
	gw.hangUpdate = true

	e, cache := newTestEngine(gw, buyerActor())
	require.NoError(t, e.FetchKind(context.Background(), models.KindAccount))

	_, err := e.UpdateProfile(context.Background(), "u1", gateway.Row{"name": "After"})
	require.Error(t, err)
	assert.True(t, IsPendingSync(err), "timeout must be reported as non-fatal pending sync")

	rec, ok := cache.Get(models.KindAccount, "u1")
	require.True(t, ok)
	assert.Equal(t, "After", rec.(models.Account).Name,
		"the optimistic value must remain visible, never silently reverted")
}

func TestIdempotentPaymentSettlement(t *testing.T) {
	gw := newFakeGateway()
	e, cache := newTestEngine(gw, buyerActor())

	s := gateway.Settlement{
		Reference:  "PAY-123",
		ListingID:  "l1",
		BuyerID:    "buyer-1",
		Amount:     500,
		Commission: 50,
	}

	first, err := e.SettlePayment(context.Background(), s)
	require.NoError(t, err)

	second, err := e.SettlePayment(context.Background(), s)
	require.NoError(t, err, "duplicate reference resolves as success-with-existing-record")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, cache.Len(models.KindTransaction),
		"exactly one transaction after both calls settle")
}

func TestPurchaseListingFlow(t *testing.T) {
	gw := newFakeGateway()
	e, cache := newTestEngine(gw, buyerActor())
	e.WithPayments(widgetFunc(func(ctx context.Context, amount float64, md map[string]string) (string, error) {
		return "PAY-999", nil
	}))

	cache.Upsert(models.KindListing, models.Listing{
		ID: "l1", Price: 1000, Status: models.ListingStatusLive, Quantity: 40,
	})

	tx, err := e.PurchaseListing(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "PAY-999", tx.PaymentRef)
	assert.InDelta(t, 100, tx.Commission, 1e-9, "default 10% platform fee")

	rec, ok := cache.Get(models.KindListing, "l1")
	require.True(t, ok)
	assert.Equal(t, models.ListingStatusSold, rec.(models.Listing).Status)
}

func TestPurchaseSoldListingConflicts(t *testing.T) {
	e, cache := newTestEngine(newFakeGateway(), buyerActor())
	e.WithPayments(widgetFunc(func(ctx context.Context, amount float64, md map[string]string) (string, error) {
		t.Fatal("widget must not be invoked for a sold listing")
		return "", nil
	}))

	cache.Upsert(models.KindListing, models.Listing{ID: "l1", Status: models.ListingStatusSold})

	_, err := e.PurchaseListing(context.Background(), "l1")
	assert.Equal(t, ClassConflict, ClassOf(err))
}

func TestReferentialDeleteGuard(t *testing.T) {
	gw := newFakeGateway()
	gw.deleteErr = &gateway.Error{Class: gateway.ClassReferentialConstraint, Message: "transactions reference listings"}

	e, cache := newTestEngine(gw, buyerActor())
	listing := models.Listing{ID: "l1", Status: models.ListingStatusLive, Quantity: 10}
	cache.Upsert(models.KindListing, listing)

	err := e.DeleteListing(context.Background(), "l1")
	require.Error(t, err)
	assert.Equal(t, ClassReferentialConstraint, ClassOf(err))

	rec, ok := cache.Get(models.KindListing, "l1")
	require.True(t, ok, "listing must remain in the store")
	assert.Equal(t, listing, rec.(models.Listing), "and remain unchanged")
}

func TestShapeAFailureLeavesStoreUntouched(t *testing.T) {
	gw := newFakeGateway()
	gw.updateErr = &gateway.Error{Class: gateway.ClassUnknown, Message: "connection refused"}

	e, cache := newTestEngine(gw, buyerActor())
	cache.Upsert(models.KindListing, models.Listing{ID: "l1", Status: models.ListingStatusPending})

	_, err := e.UpdateListingStatus(context.Background(), "l1", models.ListingStatusLive)
	require.Error(t, err)
	assert.Equal(t, ClassRemoteUnreachable, ClassOf(err))

	rec, _ := cache.Get(models.KindListing, "l1")
	assert.Equal(t, models.ListingStatusPending, rec.(models.Listing).Status)
}

func TestAnonymousMutationsRejected(t *testing.T) {
	e, _ := newTestEngine(newFakeGateway(), nil)

	_, err := e.CreateListing(context.Background(), models.Listing{Title: "x"})
	assert.Equal(t, ClassNotAuthenticated, ClassOf(err))

	_, err = e.UpdateProfile(context.Background(), "u1", gateway.Row{"name": "x"})
	assert.Equal(t, ClassNotAuthenticated, ClassOf(err))
}

func TestEditSoldListingRejected(t *testing.T) {
	e, cache := newTestEngine(newFakeGateway(), buyerActor())
	cache.Upsert(models.KindListing, models.Listing{ID: "l1", Status: models.ListingStatusSold})

	_, err := e.EditListing(context.Background(), "l1", gateway.Row{"price": 5.0})
	assert.Equal(t, ClassConflict, ClassOf(err))
}

func TestEditListingNegativeValuesRejectedAnyShape(t *testing.T) {
	gw := newFakeGateway()
	e, cache := newTestEngine(gw, buyerActor())
	cache.Upsert(models.KindListing, models.Listing{ID: "l1", Status: models.ListingStatusLive})

	for _, patch := range []gateway.Row{
		{"quantity": -5.0},
		{"quantity": -5},
		{"quantity": int64(-5)},
		{"price": "-12.5"},
	} {
		_, err := e.EditListing(context.Background(), "l1", patch)
		assert.Equal(t, ClassValidationRejected, ClassOf(err), "patch %v", patch)
	}
	assert.Zero(t, gw.updateAttempts, "rejected patches must not reach the gateway")

	_, err := e.EditListing(context.Background(), "l1", gateway.Row{"quantity": 5})
	require.NoError(t, err)
}

func TestUpdateAccountStatusAdminOnly(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(models.KindAccount, gateway.Row{"id": "u1", "status": models.AccountStatusPending})

	e, _ := newTestEngine(gw, buyerActor())
	_, err := e.UpdateAccountStatus(context.Background(), "u1", models.AccountStatusVerified)
	assert.Equal(t, ClassValidationRejected, ClassOf(err))

	admin, _ := newTestEngine(gw, adminActor())
	got, err := admin.UpdateAccountStatus(context.Background(), "u1", models.AccountStatusVerified)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusVerified, got.Status)
}

func TestBulkRequestDeadlineImmutable(t *testing.T) {
	e, _ := newTestEngine(newFakeGateway(), buyerActor())

	_, err := e.UpdateBulkRequest(context.Background(), "r1", gateway.Row{"deadline": "2026-12-01"})
	assert.Equal(t, ClassValidationRejected, ClassOf(err))
}

func TestFetchAllNormalizes(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(models.KindListing,
		gateway.Row{"id": "l1", "title": "Cotton lot"}, // no quantity, no status
		gateway.Row{"id": "l2", "title": "Silk lot", "status": models.ListingStatusLive, "quantity": 25.0},
	)

	e, cache := newTestEngine(gw, buyerActor())
	require.NoError(t, e.FetchAll(context.Background()))

	rec, ok := cache.Get(models.KindListing, "l1")
	require.True(t, ok)
	l := rec.(models.Listing)
	assert.Equal(t, models.ListingStatusPending, l.Status, "missing status defaults to Pending")
	assert.Zero(t, l.Quantity, "missing quantity defaults to 0")
}

// widgetFunc adapts a function to PaymentWidget.
type widgetFunc func(ctx context.Context, amount float64, metadata map[string]string) (string, error)

func (f widgetFunc) Capture(ctx context.Context, amount float64, metadata map[string]string) (string, error) {
	return f(ctx, amount, metadata)
}
