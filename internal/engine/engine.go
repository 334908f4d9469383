package engine

import (
	"context"
	"time"

	"textile-sync/internal/classify"
	"textile-sync/internal/deadline"
	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/store"
	"textile-sync/internal/uploads"
	"textile-sync/internal/util"

	"go.uber.org/zap"
)

// Engine applies every create/update/delete against the remote gateway and
// keeps the entity cache in step. Two mutation shapes exist:
//
// Shape A, fire-and-confirm: send the remote request, splice the cache with
// the server-confirmed row on success, leave the cache untouched on failure.
// Used for status changes, deletes and simple creates.
//
// Shape B, optimistic-with-self-healing: splice the caller's intended result
// into the cache first, then race the remote commit against a deadline,
// stripping one unrecognized field per retry when the remote schema lags the
// client. A timed-out commit leaves the optimistic value visible and reports
// pending-sync; it is never silently reverted.
type Engine struct {
	gw    gateway.Gateway
	cache *store.Store
	actor func() *models.Actor

	profileTimeout time.Duration
	assetTimeout   time.Duration

	// optional collaborators, attached via WithUploads / WithPayments
	pipeline   *uploads.Pipeline
	classifier classify.Classifier
	widget     PaymentWidget

	logger *zap.Logger
}

// New wires the engine. actor supplies the current session Actor for
// authentication checks.
func New(gw gateway.Gateway, cache *store.Store, actor func() *models.Actor, profileTimeout, assetTimeout time.Duration) *Engine {
	return &Engine{
		gw:             gw,
		cache:          cache,
		actor:          actor,
		profileTimeout: profileTimeout,
		assetTimeout:   assetTimeout,
		logger:         util.GetLogger(),
	}
}

// Cache exposes the entity cache for read-side consumers.
func (e *Engine) Cache() *store.Store { return e.cache }

func (e *Engine) requireActor(op, kind string) (*models.Actor, *SyncError) {
	a := e.actor()
	if a == nil {
		return nil, authErr(op, kind)
	}
	return a, nil
}

// fireAndConfirm is Shape A for inserts and updates: no optimistic
// pre-application, the store only ever sees the server-confirmed row.
func (e *Engine) fireAndConfirm(ctx context.Context, op, kind, id string, call func(context.Context) (gateway.Row, error)) (models.Record, error) {
	ctx, span := util.StartSpan(ctx, "Engine."+op)
	defer span.End()

	row, err := call(ctx)
	if err != nil {
		util.MutationsTotal.WithLabelValues(kind, "fire-and-confirm", "error").Inc()
		mapped := mapRemote(op, kind, id, err)
		e.logger.Error("Mutation failed",
			zap.String("kind", kind),
			zap.String("op", op),
			zap.String("id", id),
			zap.String("class", string(mapped.Class)),
			zap.Error(err))
		return nil, mapped
	}

	rec, ok := models.Normalize(kind, row)
	if !ok {
		util.MutationsTotal.WithLabelValues(kind, "fire-and-confirm", "error").Inc()
		return nil, rejectErr(op, kind, id, "unknown entity kind")
	}

	e.cache.Upsert(kind, rec)
	util.MutationsTotal.WithLabelValues(kind, "fire-and-confirm", "ok").Inc()
	return rec, nil
}

// commitWithHealing races the remote update against d and self-heals schema
// drift: when the remote reports an unrecognized field, that field is
// removed from a copy of the payload and the commit retried. The loop is
// bounded by the payload size, so at most one field is stripped per
// iteration and the process terminates when the payload is empty or the
// call settles. A deadline loss reports pending-sync.
func (e *Engine) commitWithHealing(ctx context.Context, op, kind, id string, patch gateway.Row, d time.Duration) (gateway.Row, error) {
	payload := make(gateway.Row, len(patch))
	for k, v := range patch {
		payload[k] = v
	}

	for len(payload) > 0 {
		row, err := deadline.Race(ctx, d, func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Update(ctx, kind, id, payload)
		})
		if err == nil {
			return row, nil
		}
		if deadline.Exceeded(err) {
			return nil, pendingErr(op, kind, id, err)
		}
		if gateway.ClassOf(err) == gateway.ClassSchemaMismatch {
			field := gateway.FieldOf(err)
			if _, present := payload[field]; field != "" && present {
				delete(payload, field)
				util.SchemaDriftRetriesTotal.WithLabelValues(kind).Inc()
				e.logger.Warn("Remote schema lags client, stripping field and retrying",
					zap.String("kind", kind),
					zap.String("op", op),
					zap.String("id", id),
					zap.String("field", field))
				continue
			}
			// The remote blames a field we are not sending; stripping
			// cannot help.
			return nil, &SyncError{Class: ClassSchemaDriftExhausted, Kind: kind, Op: op, ID: id,
				Message: "unrecognized field not present in payload", Err: err}
		}
		return nil, mapRemote(op, kind, id, err)
	}

	return nil, &SyncError{Class: ClassSchemaDriftExhausted, Kind: kind, Op: op, ID: id,
		Message: "payload empty after stripping unrecognized fields"}
}

// FetchAll loads every entity kind through the gateway into the cache,
// normalizing each row. Kinds that fail are logged and skipped; the first
// error is returned after all kinds were attempted.
func (e *Engine) FetchAll(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Engine.FetchAll")
	defer span.End()

	var firstErr error
	for _, kind := range models.Kinds {
		if err := e.FetchKind(ctx, kind); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FetchKind replaces one kind's collection with the remote rows.
func (e *Engine) FetchKind(ctx context.Context, kind string) error {
	start := time.Now()
	rows, err := e.gw.Select(ctx, kind, gateway.Filter{})
	util.FetchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Error("Fetch failed", zap.String("kind", kind), zap.Error(err))
		return mapRemote("fetch", kind, "", err)
	}

	recs := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		if rec, ok := models.Normalize(kind, row); ok {
			recs = append(recs, rec)
		}
	}
	e.cache.ReplaceAll(kind, recs)
	return nil
}
