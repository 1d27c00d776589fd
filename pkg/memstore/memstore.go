// Copyright 2024-2026 Aiku AI

// Package memstore provides an in-memory implementation of the repository
// contracts. It is meant for tests and small single-process deployments;
// it honors the same bijectivity and conflict rules a durable backend
// must, so code exercised against it behaves identically on real storage.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgekit/pkg/bridge"
)

// ErrConflict is returned when an insert would remap an already-mapped
// identifier to a different counterpart.
var ErrConflict = errors.New("memstore: conflicting mapping")

// PuppetStore implements bridge.PuppetRepository.
type PuppetStore[U bridge.RemoteUserID] struct {
	mu       sync.RWMutex
	byRemote map[U]id.UserID
	byMX     map[id.UserID]U
}

func NewPuppetStore[U bridge.RemoteUserID]() *PuppetStore[U] {
	return &PuppetStore[U]{
		byRemote: make(map[U]id.UserID),
		byMX:     make(map[id.UserID]U),
	}
}

func (s *PuppetStore[U]) GetMXUser(_ context.Context, remote U) (id.UserID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mxid, ok := s.byRemote[remote]
	return mxid, ok, nil
}

func (s *PuppetStore[U]) GetRemoteUser(_ context.Context, mxid id.UserID) (U, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	remote, ok := s.byMX[mxid]
	return remote, ok, nil
}

func (s *PuppetStore[U]) Create(_ context.Context, mxid id.UserID, remote U) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byRemote[remote]; ok {
		if existing == mxid {
			return nil
		}
		return fmt.Errorf("%w: user %q already mapped to %q", ErrConflict, remote.UsernamePart(), existing)
	}
	if existing, ok := s.byMX[mxid]; ok {
		return fmt.Errorf("%w: puppet %q already mapped to %q", ErrConflict, mxid, existing.UsernamePart())
	}
	s.byRemote[remote] = mxid
	s.byMX[mxid] = remote
	return nil
}

type roomEntry[A bridge.RemoteActorID] struct {
	roomID id.RoomID
	actor  A
	direct bool
}

// RoomStore implements bridge.RoomRepository.
type RoomStore[A bridge.RemoteActorID, R bridge.RemoteRoomID] struct {
	mu       sync.RWMutex
	byRemote map[R]roomEntry[A]
	byMX     map[id.RoomID]R
}

func NewRoomStore[A bridge.RemoteActorID, R bridge.RemoteRoomID]() *RoomStore[A, R] {
	return &RoomStore[A, R]{
		byRemote: make(map[R]roomEntry[A]),
		byMX:     make(map[id.RoomID]R),
	}
}

func (s *RoomStore[A, R]) GetMXRoom(_ context.Context, remote R) (id.RoomID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byRemote[remote]
	return entry.roomID, ok, nil
}

func (s *RoomStore[A, R]) GetRemoteRoom(_ context.Context, roomID id.RoomID) (R, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	remote, ok := s.byMX[roomID]
	return remote, ok, nil
}

func (s *RoomStore[A, R]) Create(_ context.Context, actor A, roomID id.RoomID, remote R, direct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byRemote[remote]; ok {
		if existing.roomID == roomID {
			return nil
		}
		return fmt.Errorf("%w: room %q already mapped to %q", ErrConflict, remote.AliasPart(), existing.roomID)
	}
	if existing, ok := s.byMX[roomID]; ok {
		return fmt.Errorf("%w: matrix room %q already mapped to %q", ErrConflict, roomID, existing.AliasPart())
	}
	s.byRemote[remote] = roomEntry[A]{roomID: roomID, actor: actor, direct: direct}
	s.byMX[roomID] = remote
	return nil
}

func (s *RoomStore[A, R]) IsRoomBridged(_ context.Context, remote R) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byRemote[remote]
	return ok, nil
}

// IsDirect reports the direct flag stored with the mapping.
func (s *RoomStore[A, R]) IsDirect(remote R) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byRemote[remote]
	return entry.direct, ok
}

type messageOrigin uint8

const (
	originRemote messageOrigin = iota
	originMatrix
)

type messageEntry[M bridge.RemoteMessageID] struct {
	eventID id.EventID
	origin  messageOrigin
}

// MessageStore implements bridge.MessageRepository.
type MessageStore[M bridge.RemoteMessageID] struct {
	mu       sync.RWMutex
	byRemote map[M]messageEntry[M]
	byEvent  map[id.EventID]M
}

func NewMessageStore[M bridge.RemoteMessageID]() *MessageStore[M] {
	return &MessageStore[M]{
		byRemote: make(map[M]messageEntry[M]),
		byEvent:  make(map[id.EventID]M),
	}
}

func (s *MessageStore[M]) GetEventID(_ context.Context, remoteID M) (id.EventID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byRemote[remoteID]
	return entry.eventID, ok, nil
}

func (s *MessageStore[M]) GetMessageID(_ context.Context, eventID id.EventID) (M, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	remoteID, ok := s.byEvent[eventID]
	return remoteID, ok, nil
}

func (s *MessageStore[M]) CreateByRemoteAuthor(_ context.Context, remoteID M, eventID id.EventID) error {
	return s.create(remoteID, eventID, originRemote)
}

func (s *MessageStore[M]) CreateByMatrixAuthor(_ context.Context, remoteID M, eventID id.EventID) error {
	return s.create(remoteID, eventID, originMatrix)
}

func (s *MessageStore[M]) create(remoteID M, eventID id.EventID, origin messageOrigin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byRemote[remoteID]; ok {
		if existing.eventID == eventID && existing.origin == origin {
			return nil
		}
		return fmt.Errorf("%w: message already mapped to %q", ErrConflict, existing.eventID)
	}
	if _, ok := s.byEvent[eventID]; ok {
		return fmt.Errorf("%w: event %q already mapped", ErrConflict, eventID)
	}
	s.byRemote[remoteID] = messageEntry[M]{eventID: eventID, origin: origin}
	s.byEvent[eventID] = remoteID
	return nil
}

// TransactionStore implements bridge.TransactionRepository.
type TransactionStore struct {
	mu        sync.Mutex
	processed map[string]struct{}
	handled   map[string]map[id.EventID]struct{}
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		processed: make(map[string]struct{}),
		handled:   make(map[string]map[id.EventID]struct{}),
	}
}

func (s *TransactionStore) IsTransactionProcessed(_ context.Context, txnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[txnID]
	return ok, nil
}

func (s *TransactionStore) MarkTransactionProcessed(_ context.Context, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[txnID] = struct{}{}
	delete(s.handled, txnID)
	return nil
}

func (s *TransactionStore) HandledEvents(_ context.Context, txnID string) (map[id.EventID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make(map[id.EventID]struct{}, len(s.handled[txnID]))
	for eventID := range s.handled[txnID] {
		events[eventID] = struct{}{}
	}
	return events, nil
}

func (s *TransactionStore) MarkEventHandled(_ context.Context, txnID string, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handled[txnID]; !ok {
		s.handled[txnID] = make(map[id.EventID]struct{})
	}
	s.handled[txnID][eventID] = struct{}{}
	return nil
}
