// Copyright 2024-2026 Aiku AI

package bridge

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// WorkerEvent is the tagged union flowing through every pipeline layer.
//
// The set of variants is closed: Connected, Disconnected, FatalFailure,
// RoomCreate, RoomMembership, RoomMessage, RealUserMembership and
// UserCreate. Some variants gain fields as they travel down the pipeline
// (see RoomCreate and UserCreate); consumers must treat an unknown variant
// as a wiring bug, not skip it silently.
type WorkerEvent[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] interface {
	workerEvent()
}

// Connected signals that the adapter successfully connected to the remote
// network.
type Connected[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct{}

// Disconnected signals that the adapter lost its connection. The adapter is
// expected to recover on a subsequent Events call.
type Disconnected[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	Reason string
}

// FatalFailure signals an irrecoverable error for this actor, such as a
// revoked authorization or a banned account. The supervision loop stops
// retrying the actor permanently; only a process restart re-admits it.
type FatalFailure[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	Reason string
}

// RoomCreate requests (and later reports) replication of a remote room.
//
// The adapter emits it with RoomID and optionally RoomData. The
// auto-provisioning layer guarantees RoomData is set before the event goes
// further down. The materializing layer sets MXRoomID once the Matrix room
// exists; the orchestrator then persists the room mapping.
type RoomCreate[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	RoomID   R
	RoomData *RemoteRoom[U, R]
	MXRoomID id.RoomID
}

// RoomMembership is a membership transition of a remote-controlled user
// (a puppet).
type RoomMembership[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	RoomID R
	// Sender is the author of the transition for LEAVE/BAN/INVITE. Nil
	// means the bridge bot. For JOIN and KNOCK it must be nil or equal to
	// StateKey.
	Sender   *U
	StateKey U
	// Membership is the target state: join, knock, leave, invite or ban.
	Membership event.Membership
	// AsServiceMember marks an INVITE whose target should be recorded in
	// the room's service-member state (MSC4171). Relevant to personal
	// bridges replicating bridge bypasses.
	AsServiceMember bool
	// UserData optionally carries fresh user data, saving the
	// auto-provisioning layer a GetUser round trip.
	UserData *RemoteUser[U]
}

// RoomMessage is a message authored on the remote network.
type RoomMessage[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	RoomID  R
	EventID RemoteEventID
	Sender  U
	Content *event.MessageEventContent
	// MessageID, when set, is stored as a message mapping after the Matrix
	// event is sent, enabling later redaction/relation replication.
	MessageID *M
	// MXEventID is set by the materializing layer once the Matrix event
	// is sent; the orchestrator then persists the message mapping.
	MXEventID id.EventID
}

// RealUserMembership is a membership transition targeting a genuine local
// end user rather than a puppet. JOIN and KNOCK are not representable: the
// bridge cannot act on a real user's behalf.
type RealUserMembership[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	RoomID R
	// Sender resolution follows RoomMembership: nil means the bridge bot.
	Sender   *U
	StateKey id.UserID
	// Membership must be invite, leave or ban.
	Membership event.Membership
}

// UserCreate requests (and later reports) replication of a remote user as a
// puppet account.
//
// The auto-provisioning layer guarantees UserData is set; the materializing
// layer sets MXUserID once the puppet account exists; the orchestrator then
// persists the puppet mapping.
type UserCreate[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	UserID   U
	UserData *RemoteUser[U]
	MXUserID id.UserID
}

func (Connected[U, R, M]) workerEvent()          {}
func (Disconnected[U, R, M]) workerEvent()       {}
func (FatalFailure[U, R, M]) workerEvent()       {}
func (RoomCreate[U, R, M]) workerEvent()         {}
func (RoomMembership[U, R, M]) workerEvent()     {}
func (RoomMessage[U, R, M]) workerEvent()        {}
func (RealUserMembership[U, R, M]) workerEvent() {}
func (UserCreate[U, R, M]) workerEvent()         {}

// EventSink receives pipeline events. Returning an error aborts the stream;
// the error propagates out of the corresponding Events call.
type EventSink[U RemoteUserID, R RemoteRoomID, M RemoteMessageID] func(WorkerEvent[U, R, M]) error
