// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// RoomCreateRequest describes the room the materializing layer wants
// created on the homeserver.
type RoomCreateRequest struct {
	AliasLocalpart string
	Name           string
	IsDirect       bool
	// Creator, when non-empty, is the puppet that creates the room
	// instead of the bridge bot.
	Creator id.UserID
	Invite  []id.UserID
	// ServiceMembers are recorded in the functional members state event
	// of the new room.
	ServiceMembers []id.UserID
}

// MatrixClient is the homeserver surface the bridge core needs. The
// canonical implementation wraps an appservice client and impersonates
// puppets through intents.
type MatrixClient interface {
	// RegisterUser creates an appservice-namespaced account. Registering
	// an already existing localpart is not an error.
	RegisterUser(ctx context.Context, localpart string) error
	SetDisplayName(ctx context.Context, user id.UserID, name string) error

	// CreateRoom creates a room as described and returns its id.
	CreateRoom(ctx context.Context, req RoomCreateRequest) (id.RoomID, error)
	// ResolveAlias looks up a room alias, comma-ok on M_NOT_FOUND.
	ResolveAlias(ctx context.Context, alias id.RoomAlias) (id.RoomID, bool, error)
	DeleteAlias(ctx context.Context, alias id.RoomAlias) error
	JoinedMembers(ctx context.Context, room id.RoomID) (map[id.UserID]struct{}, error)

	InviteUser(ctx context.Context, asUser id.UserID, room id.RoomID, target id.UserID) error
	JoinRoom(ctx context.Context, asUser id.UserID, room id.RoomID) error
	KnockRoom(ctx context.Context, asUser id.UserID, room id.RoomID) error
	LeaveRoom(ctx context.Context, asUser id.UserID, room id.RoomID) error
	KickUser(ctx context.Context, asUser id.UserID, room id.RoomID, target id.UserID) error
	BanUser(ctx context.Context, asUser id.UserID, room id.RoomID, target id.UserID) error

	// SendMessage sends a message event as the given user. txnID
	// deduplicates redelivery on the homeserver side.
	SendMessage(ctx context.Context, asUser id.UserID, room id.RoomID, content *event.MessageEventContent, txnID string) (id.EventID, error)
	// SendNotice posts a bot notice. A non-empty inReplyTo attaches a
	// reply relation to that event.
	SendNotice(ctx context.Context, room id.RoomID, text string, inReplyTo id.EventID) error
	SendStateEvent(ctx context.Context, asUser id.UserID, room id.RoomID, eventType event.Type, stateKey string, content any) error
	GetStateEvent(ctx context.Context, room id.RoomID, eventType event.Type, stateKey string, into any) (bool, error)
}
