// Copyright 2024-2026 Aiku AI

package bridge

import (
	"maunium.net/go/mautrix/id"
)

// RemoteActorID identifies an identity that owns a subscription to the
// remote network. The concrete type is supplied by the adapter module.
type RemoteActorID interface {
	comparable
	// AliasPart returns a stable string usable inside a Matrix room alias
	// localpart. It must be unique per actor.
	AliasPart() string
}

// RemoteUserID identifies a user on the remote network.
type RemoteUserID interface {
	comparable
	// UsernamePart returns a stable string usable inside a Matrix user id
	// localpart. It must be unique per user, across all actors.
	UsernamePart() string
}

// RemoteRoomID identifies a room (chat, channel, conversation) on the
// remote network.
type RemoteRoomID interface {
	comparable
	// AliasPart returns a stable string usable inside a Matrix room alias
	// localpart. It must be unique per room, across all actors.
	AliasPart() string
}

// RemoteMessageID identifies a message on the remote network. It only needs
// stable equality; the framework never derives Matrix identifiers from it.
type RemoteMessageID interface {
	comparable
}

// RemoteEventID is the opaque per-event id assigned by the adapter. It is
// used as the Matrix transaction id when sending the corresponding event,
// which is what makes message sends safely re-attemptable.
type RemoteEventID string

// IDMapper derives deterministic Matrix identifiers from remote ids. The
// derived values double as idempotency tokens: re-running an interrupted
// provisioning attempt lands on the same alias or username and resolves via
// the conflict path instead of creating a duplicate resource.
type IDMapper[U RemoteUserID, R RemoteRoomID] interface {
	RoomAlias(remote R) id.RoomAlias
	PuppetUserID(remote U) id.UserID
}

// PrefixIDMapper is the default IDMapper: it concatenates a configured
// prefix with the remote id's alias/username part on the bridge's domain.
type PrefixIDMapper[U RemoteUserID, R RemoteRoomID] struct {
	RoomAliasPrefix  string
	PuppetPrefix     string
	HomeserverDomain string
}

func (m PrefixIDMapper[U, R]) RoomAlias(remote R) id.RoomAlias {
	return id.NewRoomAlias(m.RoomAliasPrefix+remote.AliasPart(), m.HomeserverDomain)
}

func (m PrefixIDMapper[U, R]) PuppetUserID(remote U) id.UserID {
	return id.NewUserID(m.PuppetPrefix+remote.UsernamePart(), m.HomeserverDomain)
}
