// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// ActorRepository resolves actors: who owns them, who acts for an inbound
// event, and which actors are live right now. Actors are created externally
// (an actor discovery feed); the framework only reads them.
type ActorRepository[A RemoteActorID] interface {
	// GetLocalUser returns the Matrix id of the real user owning the
	// actor, for personal bridges. ok is false when the actor has no local
	// owner. Returns a NoSuchActorError if the actor does not exist.
	GetLocalUser(ctx context.Context, actor A) (mxid id.UserID, ok bool, err error)

	// GetActorForEvent picks the actor that should handle an inbound
	// Matrix event. ok is false when no actor applies and the event is to
	// be skipped silently.
	GetActorForEvent(ctx context.Context, evt *event.Event) (actor A, ok bool, err error)

	// GetActorPuppet returns the puppet of the actor's own remote account,
	// used to replicate bridge-bypass traffic as a service member. ok is
	// false when no such puppet exists or the feature is unused.
	GetActorPuppet(ctx context.Context, actor A) (mxid id.UserID, ok bool, err error)

	// Actors returns a live feed of the full actor set. Each element is
	// the complete current set; the supervision loop diffs consecutive
	// emissions. The channel closes when ctx is cancelled.
	Actors(ctx context.Context) (<-chan []A, error)
}

// PuppetRepository stores the bijective, append-only association between
// puppet Matrix accounts and remote users.
type PuppetRepository[U RemoteUserID] interface {
	GetMXUser(ctx context.Context, remote U) (mxid id.UserID, ok bool, err error)
	GetRemoteUser(ctx context.Context, mxid id.UserID) (remote U, ok bool, err error)
	// Create persists the mapping. It must be idempotent for identical
	// pairs and must reject a conflicting pair for an already-mapped id.
	Create(ctx context.Context, mxid id.UserID, remote U) error
}

// RoomRepository stores the bijective, append-only association between
// Matrix rooms and remote rooms, tagged with the owning actor and whether
// the room is a direct chat.
type RoomRepository[A RemoteActorID, R RemoteRoomID] interface {
	GetMXRoom(ctx context.Context, remote R) (roomID id.RoomID, ok bool, err error)
	GetRemoteRoom(ctx context.Context, roomID id.RoomID) (remote R, ok bool, err error)
	// Create persists the mapping. Same idempotency contract as
	// PuppetRepository.Create.
	Create(ctx context.Context, actor A, roomID id.RoomID, remote R, direct bool) error
	// IsRoomBridged reports whether a mapping exists for the remote room.
	IsRoomBridged(ctx context.Context, remote R) (bool, error)
}

// MessageRepository stores the one-to-one association between remote
// message ids and Matrix event ids, tagged by authorship origin. The
// authorship tag is needed later to replicate redactions and relations in
// the right direction.
//
// A conflicting second insert for an existing remote id is an invariant
// violation and must fail.
type MessageRepository[M RemoteMessageID] interface {
	GetEventID(ctx context.Context, remoteID M) (eventID id.EventID, ok bool, err error)
	GetMessageID(ctx context.Context, eventID id.EventID) (remoteID M, ok bool, err error)
	// CreateByRemoteAuthor records a mapping for a message authored on the
	// remote network. Idempotent for identical pairs.
	CreateByRemoteAuthor(ctx context.Context, remoteID M, eventID id.EventID) error
	// CreateByMatrixAuthor records a mapping for a message authored by a
	// real Matrix user. Idempotent for identical pairs.
	CreateByMatrixAuthor(ctx context.Context, remoteID M, eventID id.EventID) error
}

// TransactionRepository tracks inbound delivery batches so redeliveries
// under at-least-once semantics become no-ops, and partially processed
// batches resume where they stopped.
type TransactionRepository interface {
	// IsTransactionProcessed reports whether the whole batch was already
	// handled. Once true it stays true.
	IsTransactionProcessed(ctx context.Context, txnID string) (bool, error)
	// MarkTransactionProcessed marks the whole batch handled. The
	// repository may forget per-event marks for the batch afterwards.
	MarkTransactionProcessed(ctx context.Context, txnID string) error
	// HandledEvents returns the events already durably handled within a
	// possibly partially processed batch.
	HandledEvents(ctx context.Context, txnID string) (map[id.EventID]struct{}, error)
	// MarkEventHandled durably marks one event handled within the batch.
	MarkEventHandled(ctx context.Context, txnID string, eventID id.EventID) error
}

// RepositorySet bundles the five repository contracts the framework
// consumes.
type RepositorySet[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	Actors       ActorRepository[A]
	Puppets      PuppetRepository[U]
	Rooms        RoomRepository[A, R]
	Messages     MessageRepository[M]
	Transactions TransactionRepository
}
