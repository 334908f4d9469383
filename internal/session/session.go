package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"textile-sync/internal/deadline"
	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/store"
	"textile-sync/internal/util"

	"go.uber.org/zap"
)

// Auth state transition events.
const (
	EventSignedIn  = "SIGNED_IN"
	EventSignedOut = "SIGNED_OUT"
)

// Session is an active session at the identity provider.
type Session struct {
	UserID string
	Email  string
}

// Provider is the external identity provider, specified at its interface
// boundary only.
type Provider interface {
	// ActiveSession returns the current session, or nil when signed out.
	ActiveSession(ctx context.Context) (*Session, error)

	// OnAuthStateChange registers a standing listener for sign-in/sign-out
	// transitions for the remainder of the process.
	OnAuthStateChange(handler func(event string, s *Session))

	SignOut(ctx context.Context) error
}

// Resolver establishes the current Actor at startup and on auth-state
// transitions, and triggers the full entity fetch whenever an authenticated
// or offline-cached identity is resolved. Exactly one Actor is active per
// session; an unset Actor means anonymous.
type Resolver struct {
	provider Provider
	markers  MarkerStore
	gw       gateway.Gateway
	cache    *store.Store
	fetch    func(ctx context.Context) error
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.RWMutex
	actor *models.Actor
}

// NewResolver wires the resolver. fetch is the full-fetch operation invoked
// after a non-anonymous identity is established.
func NewResolver(
	provider Provider,
	markers MarkerStore,
	gw gateway.Gateway,
	cache *store.Store,
	fetch func(ctx context.Context) error,
	timeout time.Duration,
) *Resolver {
	return &Resolver{
		provider: provider,
		markers:  markers,
		gw:       gw,
		cache:    cache,
		fetch:    fetch,
		timeout:  timeout,
		logger:   util.GetLogger(),
	}
}

// Bootstrap resolves the Actor for this session and registers the standing
// auth-state listener. It returns the resolved Actor, nil meaning anonymous.
// Provider errors other than timeout are logged and produce an anonymous
// Actor; nothing is retried at this layer.
func (r *Resolver) Bootstrap(ctx context.Context) *models.Actor {
	actor := r.resolve(ctx)
	r.setActor(actor)

	authenticity := models.AuthenticityAnonymous
	if actor != nil {
		authenticity = actor.Authenticity
	}
	util.BootstrapOutcomeTotal.WithLabelValues(authenticity).Inc()

	r.provider.OnAuthStateChange(func(event string, s *Session) {
		switch event {
		case EventSignedIn:
			if s == nil {
				return
			}
			bg := context.Background()
			a := r.resolveAuthenticated(bg, s)
			r.setActor(a)
			if a != nil {
				r.startFetch()
			}
		case EventSignedOut:
			r.clear(context.Background())
		}
	})

	return actor
}

func (r *Resolver) resolve(ctx context.Context) *models.Actor {
	// A persisted offline snapshot wins outright so a returning user is
	// never locked out by a transient network failure.
	if snapshot, err := r.markers.Get(ctx, MarkerOfflineIdentity); err == nil && snapshot != "" {
		var actor models.Actor
		if json.Unmarshal([]byte(snapshot), &actor) == nil && actor.ID != "" {
			actor.Authenticity = models.AuthenticityCachedOffline
			r.logger.Info("Restored offline identity",
				zap.String("actor_id", actor.ID),
				zap.String("role", actor.Role))
			r.startFetch()
			return &actor
		}
	}

	// The deadline covers the whole resolution: provider query plus the
	// account fetch. Either one stalling lands in the cached-role branch,
	// so an unreachable data service never locks a returning user out.
	actor, err := deadline.Race(ctx, r.timeout, func(ctx context.Context) (*models.Actor, error) {
		sess, err := r.provider.ActiveSession(ctx)
		if err != nil || sess == nil {
			return nil, err
		}
		return r.lookupAccount(ctx, sess)
	})
	switch {
	case deadline.Exceeded(err):
		role, _ := r.markers.Get(ctx, MarkerLastKnownRole)
		if role == "" {
			r.logger.Warn("Identity resolution timed out with no cached role")
			return nil
		}
		r.logger.Warn("Identity resolution timed out, synthesizing offline actor",
			zap.String("role", role))
		r.startFetch()
		return &models.Actor{
			ID:           "offline",
			DisplayName:  "Offline user",
			Role:         role,
			Authenticity: models.AuthenticityCachedOffline,
		}
	case err != nil:
		r.logger.Error("Identity resolution failed", zap.Error(err))
		return nil
	case actor == nil:
		return nil
	}

	r.persistMarkers(ctx, actor)
	r.startFetch()
	return actor
}

// resolveAuthenticated fetches the matching account and persists the session
// markers. Used on sign-in transitions, where no bootstrap deadline applies.
func (r *Resolver) resolveAuthenticated(ctx context.Context, sess *Session) *models.Actor {
	actor, err := r.lookupAccount(ctx, sess)
	if err != nil {
		r.logger.Error("Account lookup failed",
			zap.String("user_id", sess.UserID),
			zap.Error(err))
		return nil
	}
	if actor == nil {
		return nil
	}
	r.persistMarkers(ctx, actor)
	return actor
}

// lookupAccount resolves the session's account into an authenticated Actor.
// A session with no matching account yields nil without error.
func (r *Resolver) lookupAccount(ctx context.Context, sess *Session) (*models.Actor, error) {
	rows, err := r.gw.Select(ctx, models.KindAccount, gateway.Filter{Column: "id", Value: sess.UserID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		r.logger.Warn("Session has no matching account", zap.String("user_id", sess.UserID))
		return nil, nil
	}

	account := models.NormalizeAccount(rows[0])
	return &models.Actor{
		ID:           account.ID,
		DisplayName:  account.Name,
		Role:         account.Role,
		Authenticity: models.AuthenticityAuthenticated,
	}, nil
}

func (r *Resolver) persistMarkers(ctx context.Context, actor *models.Actor) {
	if err := r.markers.Set(ctx, MarkerLastKnownRole, actor.Role); err != nil {
		r.logger.Warn("Failed to persist role marker", zap.Error(err))
	}
	if snapshot, err := json.Marshal(actor); err == nil {
		if err := r.markers.Set(ctx, MarkerOfflineIdentity, string(snapshot)); err != nil {
			r.logger.Warn("Failed to persist offline identity snapshot", zap.Error(err))
		}
	}
}

// Actor returns the currently resolved Actor, nil meaning anonymous.
func (r *Resolver) Actor() *models.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.actor == nil {
		return nil
	}
	a := *r.actor
	return &a
}

// SignOut signs out at the provider and clears the Actor, the persisted
// markers and the entity cache.
func (r *Resolver) SignOut(ctx context.Context) error {
	err := r.provider.SignOut(ctx)
	r.clear(ctx)
	return err
}

func (r *Resolver) clear(ctx context.Context) {
	r.setActor(nil)
	if err := r.markers.Delete(ctx, MarkerOfflineIdentity, MarkerLastKnownRole); err != nil {
		r.logger.Warn("Failed to clear session markers", zap.Error(err))
	}
	r.cache.Clear()
}

func (r *Resolver) setActor(a *models.Actor) {
	r.mu.Lock()
	r.actor = a
	r.mu.Unlock()
}

func (r *Resolver) startFetch() {
	if r.fetch == nil {
		return
	}
	go func() {
		if err := r.fetch(context.Background()); err != nil {
			r.logger.Error("Full fetch failed", zap.Error(err))
		}
	}()
}
