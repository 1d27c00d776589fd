// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// RemoteUser is a point-in-time snapshot of a user on the remote network.
// It is fetched fresh for a single provisioning operation and never cached.
type RemoteUser[U RemoteUserID] struct {
	ID          U
	DisplayName string
}

// RemoteRoom is a point-in-time snapshot of a room on the remote network.
type RemoteRoom[U RemoteUserID, R RemoteRoomID] struct {
	ID          R
	DisplayName string
	// Creator is the remote user whose puppet creates the Matrix room. Nil
	// means provisioning is automatic and the bridge bot creates the room,
	// signalling to users that history before this point is lost.
	Creator *U
	// Direct is non-nil for rooms modelling a private conversation with a
	// fixed member set.
	Direct *DirectData[U]
	// RealMembers are genuine local users invited at creation time, e.g.
	// the owner of a personal bridge.
	RealMembers []id.UserID
}

// DirectData describes the member set of a direct chat. The set must not
// include the actor's own account.
type DirectData[U RemoteUserID] struct {
	Members []U
}

// IsDirect reports whether the room models a direct chat.
func (r *RemoteRoom[U, R]) IsDirect() bool {
	return r.Direct != nil
}

// EventHandlerScope is handed to the adapter for each inbound Matrix event
// so it can record the remote message id the event produced.
type EventHandlerScope[M RemoteMessageID] interface {
	// LinkMessageID stores a mapping between the Matrix event being
	// handled and the remote message it produced, tagged as authored on
	// the Matrix side.
	LinkMessageID(ctx context.Context, remoteID M) error
}

// RemoteWorker is the adapter contract: the pluggable, per-deployment
// integration with a concrete remote network. The framework drives it and
// never implements it.
//
// The four type parameters are the adapter's id types for actors, users,
// rooms and messages.
type RemoteWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] interface {
	// HandleEvent dispatches one inbound Matrix event to the remote
	// network, suspending until delivery. It may be called again with the
	// same event after a failure, so implementations should be idempotent;
	// the event id is a usable dedup key.
	//
	// Application-level rejections (unsupported event, too large, ...)
	// must be reported as an UnhandledEventError so the orchestrator can
	// notify the room and move on. Any other error aborts the remainder of
	// the transaction and is retried on redelivery.
	HandleEvent(ctx context.Context, scope EventHandlerScope[M], actor A, room R, evt *event.Event) error

	// Events streams remote-network events for one actor into sink. A nil
	// return means the stream completed and will simply be reopened; a
	// non-nil return is a stream error and triggers the supervision
	// backoff. Errors returned by sink must be propagated out unchanged.
	//
	// Implementations must be able to recover on repeated calls after any
	// error, except after emitting FatalFailure.
	Events(ctx context.Context, actor A, sink EventSink[U, R, M]) error

	// GetUser fetches fresh data for a remote user.
	GetUser(ctx context.Context, actor A, user U) (*RemoteUser[U], error)

	// GetRoom fetches fresh data for a remote room.
	GetRoom(ctx context.Context, actor A, room R) (*RemoteRoom[U, R], error)

	// GetRoomMembers streams the members of a remote room, excluding the
	// actor's own account. Data may be nil; the caller falls back to
	// GetUser for unprovisioned members.
	GetRoomMembers(ctx context.Context, actor A, room R, yield func(user U, data *RemoteUser[U]) error) error
}

// WorkerAPI exposes the framework's id mappings to the adapter.
type WorkerAPI[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] interface {
	// GetMessageEventID resolves a remote message id to the Matrix event
	// it maps to.
	GetMessageEventID(ctx context.Context, remoteID M) (id.EventID, bool, error)
	// GetMessageID resolves a Matrix event id to the remote message it
	// maps to.
	GetMessageID(ctx context.Context, eventID id.EventID) (M, bool, error)
	// GetPuppetID resolves a remote user to its puppet's Matrix id.
	GetPuppetID(ctx context.Context, remote U) (id.UserID, bool, error)
	// GetPuppetRemoteID resolves a puppet's Matrix id back to the remote
	// user it represents.
	GetPuppetRemoteID(ctx context.Context, mxid id.UserID) (U, bool, error)
	// GetRoomID resolves a remote room to its Matrix room id.
	GetRoomID(ctx context.Context, remote R) (id.RoomID, bool, error)
	// GetRemoteRoomID resolves a Matrix room id back to the remote room.
	GetRemoteRoomID(ctx context.Context, roomID id.RoomID) (R, bool, error)
	// IsRoomBridged reports whether the remote room has a persisted
	// mapping.
	IsRoomBridged(ctx context.Context, remote R) (bool, error)
}

// RemoteWorkerFactory builds the deployment's adapter. It is invoked
// exactly once, with the framework-backed WorkerAPI.
type RemoteWorkerFactory[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] func(api WorkerAPI[U, R, M]) RemoteWorker[A, U, R, M]

// workerAPI is the repository-backed WorkerAPI implementation.
type workerAPI[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	messages MessageRepository[M]
	puppets  PuppetRepository[U]
	rooms    RoomRepository[A, R]
}

func newWorkerAPI[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID](repos RepositorySet[A, U, R, M]) WorkerAPI[U, R, M] {
	return &workerAPI[A, U, R, M]{
		messages: repos.Messages,
		puppets:  repos.Puppets,
		rooms:    repos.Rooms,
	}
}

func (a *workerAPI[A, U, R, M]) GetMessageEventID(ctx context.Context, remoteID M) (id.EventID, bool, error) {
	return a.messages.GetEventID(ctx, remoteID)
}

func (a *workerAPI[A, U, R, M]) GetMessageID(ctx context.Context, eventID id.EventID) (M, bool, error) {
	return a.messages.GetMessageID(ctx, eventID)
}

func (a *workerAPI[A, U, R, M]) GetPuppetID(ctx context.Context, remote U) (id.UserID, bool, error) {
	return a.puppets.GetMXUser(ctx, remote)
}

func (a *workerAPI[A, U, R, M]) GetPuppetRemoteID(ctx context.Context, mxid id.UserID) (U, bool, error) {
	return a.puppets.GetRemoteUser(ctx, mxid)
}

func (a *workerAPI[A, U, R, M]) GetRoomID(ctx context.Context, remote R) (id.RoomID, bool, error) {
	return a.rooms.GetMXRoom(ctx, remote)
}

func (a *workerAPI[A, U, R, M]) GetRemoteRoomID(ctx context.Context, roomID id.RoomID) (R, bool, error) {
	return a.rooms.GetRemoteRoom(ctx, roomID)
}

func (a *workerAPI[A, U, R, M]) IsRoomBridged(ctx context.Context, remote R) (bool, error) {
	return a.rooms.IsRoomBridged(ctx, remote)
}
