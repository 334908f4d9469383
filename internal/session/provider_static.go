package session

import (
	"context"
	"sync"
)

// StaticProvider is the identity provider used in local runs: a fixed user
// id configured at startup, or none. Real deployments implement Provider
// against their identity service; the resolver only sees the interface.
type StaticProvider struct {
	mu       sync.Mutex
	session  *Session
	handlers []func(event string, s *Session)
}

// NewStaticProvider returns a provider with an active session for userID,
// or a signed-out provider when userID is empty.
func NewStaticProvider(userID string) *StaticProvider {
	p := &StaticProvider{}
	if userID != "" {
		p.session = &Session{UserID: userID}
	}
	return p
}

func (p *StaticProvider) ActiveSession(_ context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

func (p *StaticProvider) OnAuthStateChange(handler func(event string, s *Session)) {
	p.mu.Lock()
	p.handlers = append(p.handlers, handler)
	p.mu.Unlock()
}

// SignIn establishes a session and notifies listeners.
func (p *StaticProvider) SignIn(userID string) {
	p.mu.Lock()
	p.session = &Session{UserID: userID}
	s := p.session
	handlers := append([]func(string, *Session){}, p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(EventSignedIn, s)
	}
}

func (p *StaticProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.session = nil
	handlers := append([]func(string, *Session){}, p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(EventSignedOut, nil)
	}
	return nil
}
