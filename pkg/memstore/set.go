// Copyright 2024-2026 Aiku AI

package memstore

import "github.com/aiku/bridgekit/pkg/bridge"

// NewRepositorySet bundles a fresh in-memory store for every repository
// contract around the given actor store.
func NewRepositorySet[A bridge.RemoteActorID, U bridge.RemoteUserID, R bridge.RemoteRoomID, M bridge.RemoteMessageID](actors *ActorStore[A]) bridge.RepositorySet[A, U, R, M] {
	return bridge.RepositorySet[A, U, R, M]{
		Actors:       actors,
		Puppets:      NewPuppetStore[U](),
		Rooms:        NewRoomStore[A, R](),
		Messages:     NewMessageStore[M](),
		Transactions: NewTransactionStore(),
	}
}
