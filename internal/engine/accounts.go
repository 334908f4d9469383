package engine

import (
	"context"
	"time"

	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/util"

	"go.uber.org/zap"
)

// UpdateProfile is the Shape B path for account/profile edits, the
// highest-risk mutation because the remote schema may lag the client's
// fields. The intended result is spliced into the cache before the commit
// starts; on confirmation the server row wins on overlapping fields; on
// timeout or drift exhaustion the optimistic value stays visible and the
// caller receives a non-fatal pending-sync/drift error.
func (e *Engine) UpdateProfile(ctx context.Context, id string, patch gateway.Row) (models.Account, error) {
	return e.updateAccountOptimistic(ctx, "update_profile", id, patch, e.profileTimeout)
}

// UpdateProfilePhoto patches only the photo reference, with the shorter
// binary-asset metadata deadline.
func (e *Engine) UpdateProfilePhoto(ctx context.Context, id, photoURL string) (models.Account, error) {
	return e.updateAccountOptimistic(ctx, "update_profile_photo", id,
		gateway.Row{"photo_url": photoURL}, e.assetTimeout)
}

func (e *Engine) updateAccountOptimistic(ctx context.Context, op, id string, patch gateway.Row, d time.Duration) (models.Account, error) {
	if _, err := e.requireActor(op, models.KindAccount); err != nil {
		return models.Account{}, err
	}
	if len(patch) == 0 {
		return models.Account{}, rejectErr(op, models.KindAccount, id, "empty patch")
	}

	// Optimistic apply: the caller's intended result is visible in the
	// cache before the network call begins.
	base := gateway.Row{"id": id}
	if rec, ok := e.cache.Get(models.KindAccount, id); ok {
		base = accountRow(rec.(models.Account))
	}
	optimistic := models.NormalizeAccount(merge(base, patch))
	e.cache.Upsert(models.KindAccount, optimistic)

	row, err := e.commitWithHealing(ctx, op, models.KindAccount, id, patch, d)
	if err != nil {
		// Never roll back: the user already saw the value accepted. The
		// class tells the UI to render "pending sync" instead of "saved".
		util.PendingSyncTotal.WithLabelValues(models.KindAccount).Inc()
		util.MutationsTotal.WithLabelValues(models.KindAccount, "optimistic", "pending").Inc()
		e.logger.Warn("Profile commit unconfirmed, keeping optimistic value",
			zap.String("id", id),
			zap.String("op", op),
			zap.Error(err))
		return optimistic, err
	}

	// Server wins on overlapping fields.
	confirmed := models.NormalizeAccount(merge(accountRow(optimistic), row))
	e.cache.Upsert(models.KindAccount, confirmed)
	util.MutationsTotal.WithLabelValues(models.KindAccount, "optimistic", "ok").Inc()
	return confirmed, nil
}

// UpdateAccountStatus is the admin-only Shape A status transition.
func (e *Engine) UpdateAccountStatus(ctx context.Context, id, status string) (models.Account, error) {
	actor, serr := e.requireActor("update_account_status", models.KindAccount)
	if serr != nil {
		return models.Account{}, serr
	}
	if actor.Role != models.RoleAdmin {
		return models.Account{}, rejectErr("update_account_status", models.KindAccount, id,
			"account status transitions are admin-controlled")
	}

	rec, err := e.fireAndConfirm(ctx, "update_account_status", models.KindAccount, id,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Update(ctx, models.KindAccount, id, gateway.Row{"status": status})
		})
	if err != nil {
		return models.Account{}, err
	}
	return rec.(models.Account), nil
}

// accountRow flattens an account back into gateway field names so patch
// merging operates on one shape.
func accountRow(a models.Account) gateway.Row {
	return gateway.Row{
		"id":        a.ID,
		"name":      a.Name,
		"email":     a.Email,
		"role":      a.Role,
		"status":    a.Status,
		"company":   a.Company,
		"phone":     a.Phone,
		"address":   a.Address,
		"photo_url": a.PhotoURL,
		"join_date": a.JoinDate,
	}
}

// merge overlays b onto a without mutating either.
func merge(a, b gateway.Row) gateway.Row {
	out := make(gateway.Row, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
