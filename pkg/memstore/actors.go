// Copyright 2024-2026 Aiku AI

package memstore

import (
	"context"
	"slices"
	"sync"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgekit/pkg/bridge"
)

// EventRouter picks the actor for an inbound Matrix event. A store with a
// single actor and no router routes everything to that actor.
type EventRouter[A bridge.RemoteActorID] func(ctx context.Context, evt *event.Event) (A, bool, error)

type actorEntry struct {
	localUser id.UserID
	hasLocal  bool
	puppet    id.UserID
	hasPuppet bool
}

// ActorStore implements bridge.ActorRepository. Actors added and removed
// at runtime are pushed to every open feed as full snapshots.
type ActorStore[A bridge.RemoteActorID] struct {
	mu     sync.Mutex
	actors map[A]actorEntry
	subs   map[chan []A]struct{}
	router EventRouter[A]
}

func NewActorStore[A bridge.RemoteActorID]() *ActorStore[A] {
	return &ActorStore[A]{
		actors: make(map[A]actorEntry),
		subs:   make(map[chan []A]struct{}),
	}
}

// SetRouter installs the inbound event routing function.
func (s *ActorStore[A]) SetRouter(router EventRouter[A]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router = router
}

// ActorOption supplies optional per-actor data to Add.
type ActorOption func(*actorEntry)

// WithLocalUser records the real Matrix user owning the actor.
func WithLocalUser(mxid id.UserID) ActorOption {
	return func(e *actorEntry) {
		e.localUser = mxid
		e.hasLocal = true
	}
}

// WithActorPuppet records the puppet of the actor's own remote account.
func WithActorPuppet(mxid id.UserID) ActorOption {
	return func(e *actorEntry) {
		e.puppet = mxid
		e.hasPuppet = true
	}
}

// Add registers an actor and notifies open feeds.
func (s *ActorStore[A]) Add(actor A, opts ...ActorOption) {
	var entry actorEntry
	for _, opt := range opts {
		opt(&entry)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[actor] = entry
	s.broadcastLocked()
}

// Remove deletes an actor and notifies open feeds.
func (s *ActorStore[A]) Remove(actor A) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actors, actor)
	s.broadcastLocked()
}

func (s *ActorStore[A]) snapshotLocked() []A {
	actors := make([]A, 0, len(s.actors))
	for actor := range s.actors {
		actors = append(actors, actor)
	}
	slices.SortFunc(actors, func(a, b A) int {
		switch ap, bp := a.AliasPart(), b.AliasPart(); {
		case ap < bp:
			return -1
		case ap > bp:
			return 1
		default:
			return 0
		}
	})
	return actors
}

func (s *ActorStore[A]) broadcastLocked() {
	snapshot := s.snapshotLocked()
	for sub := range s.subs {
		// Feeds are snapshot-valued, so only the latest emission matters;
		// a slow consumer just skips intermediate states.
		select {
		case sub <- snapshot:
		default:
			select {
			case <-sub:
			default:
			}
			sub <- snapshot
		}
	}
}

func (s *ActorStore[A]) GetLocalUser(_ context.Context, actor A) (id.UserID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.actors[actor]
	if !ok {
		return "", false, &bridge.NoSuchActorError{Actor: actor.AliasPart()}
	}
	return entry.localUser, entry.hasLocal, nil
}

func (s *ActorStore[A]) GetActorPuppet(_ context.Context, actor A) (id.UserID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.actors[actor]
	if !ok {
		return "", false, &bridge.NoSuchActorError{Actor: actor.AliasPart()}
	}
	return entry.puppet, entry.hasPuppet, nil
}

func (s *ActorStore[A]) GetActorForEvent(ctx context.Context, evt *event.Event) (A, bool, error) {
	s.mu.Lock()
	router := s.router
	var single A
	singleOK := len(s.actors) == 1
	if singleOK {
		for actor := range s.actors {
			single = actor
		}
	}
	s.mu.Unlock()

	if router != nil {
		return router(ctx, evt)
	}
	return single, singleOK, nil
}

func (s *ActorStore[A]) Actors(ctx context.Context) (<-chan []A, error) {
	sub := make(chan []A, 1)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub <- s.snapshotLocked()
	s.mu.Unlock()

	out := make(chan []A)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot := <-sub:
				select {
				case <-ctx.Done():
					return
				case out <- snapshot:
				}
			}
		}
	}()
	return out, nil
}
