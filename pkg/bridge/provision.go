// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// provisioningWorker is the auto-provisioning layer. It wraps the adapter
// and guarantees that by the time an event reaches the layers below, every
// room and user the event references is already replicated and every acting
// puppet is joined to the room it acts in. It does so by synthesizing
// UserCreate, RoomCreate and JOIN events ahead of the triggering event on
// the same sink, so ordering is preserved end to end.
type provisioningWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	inner   RemoteWorker[A, U, R, M]
	rooms   RoomRepository[A, R]
	puppets PuppetRepository[U]
	client  MatrixClient
	log     zerolog.Logger
}

func newProvisioningWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID](
	inner RemoteWorker[A, U, R, M],
	repos RepositorySet[A, U, R, M],
	client MatrixClient,
	log zerolog.Logger,
) *provisioningWorker[A, U, R, M] {
	return &provisioningWorker[A, U, R, M]{
		inner:   inner,
		rooms:   repos.Rooms,
		puppets: repos.Puppets,
		client:  client,
		log:     log.With().Str("component", "provisioning").Logger(),
	}
}

func (w *provisioningWorker[A, U, R, M]) HandleEvent(ctx context.Context, scope EventHandlerScope[M], actor A, room R, evt *event.Event) error {
	return w.inner.HandleEvent(ctx, scope, actor, room, evt)
}

func (w *provisioningWorker[A, U, R, M]) GetUser(ctx context.Context, actor A, user U) (*RemoteUser[U], error) {
	return w.inner.GetUser(ctx, actor, user)
}

func (w *provisioningWorker[A, U, R, M]) GetRoom(ctx context.Context, actor A, room R) (*RemoteRoom[U, R], error) {
	return w.inner.GetRoom(ctx, actor, room)
}

func (w *provisioningWorker[A, U, R, M]) GetRoomMembers(ctx context.Context, actor A, room R, yield func(U, *RemoteUser[U]) error) error {
	return w.inner.GetRoomMembers(ctx, actor, room, yield)
}

func (w *provisioningWorker[A, U, R, M]) Events(ctx context.Context, actor A, sink EventSink[U, R, M]) error {
	s := &provisioningStream[A, U, R, M]{
		provisioningWorker: w,
		ctx:                ctx,
		actor:              actor,
		sink:               sink,
		joined:             make(map[R]map[id.UserID]struct{}),
	}
	return w.inner.Events(ctx, actor, s.handle)
}

// provisioningStream carries per-subscription state: a cache of joined
// puppet sets, valid for the lifetime of one Events call because membership
// only changes through this same stream.
type provisioningStream[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	*provisioningWorker[A, U, R, M]
	ctx    context.Context
	actor  A
	sink   EventSink[U, R, M]
	joined map[R]map[id.UserID]struct{}
}

func (s *provisioningStream[A, U, R, M]) handle(evt WorkerEvent[U, R, M]) error {
	switch ev := evt.(type) {
	case Connected[U, R, M], Disconnected[U, R, M], FatalFailure[U, R, M]:
		return s.sink(evt)
	case UserCreate[U, R, M]:
		return s.ensureUser(ev.UserID, ev.UserData)
	case RoomCreate[U, R, M]:
		return s.ensureRoom(ev.RoomID, ev.RoomData)
	case RoomMessage[U, R, M]:
		if err := s.ensureRoom(ev.RoomID, nil); err != nil {
			return err
		}
		if err := s.ensureUser(ev.Sender, nil); err != nil {
			return err
		}
		if err := s.ensureJoined(ev.RoomID, ev.Sender); err != nil {
			return err
		}
		return s.sink(ev)
	case RoomMembership[U, R, M]:
		return s.handleMembership(ev)
	case RealUserMembership[U, R, M]:
		if err := s.ensureRoom(ev.RoomID, nil); err != nil {
			return err
		}
		if ev.Sender != nil {
			if err := s.ensureUser(*ev.Sender, nil); err != nil {
				return err
			}
			if err := s.ensureJoined(ev.RoomID, *ev.Sender); err != nil {
				return err
			}
		}
		return s.sink(ev)
	default:
		return &internalError{err: fmt.Errorf("unknown worker event %T", evt)}
	}
}

func (s *provisioningStream[A, U, R, M]) handleMembership(ev RoomMembership[U, R, M]) error {
	if err := s.ensureRoom(ev.RoomID, nil); err != nil {
		return err
	}
	if ev.Sender != nil && *ev.Sender != ev.StateKey {
		if err := s.ensureUser(*ev.Sender, nil); err != nil {
			return err
		}
		if err := s.ensureJoined(ev.RoomID, *ev.Sender); err != nil {
			return err
		}
	}
	switch ev.Membership {
	case event.MembershipInvite, event.MembershipJoin, event.MembershipKnock:
		if err := s.ensureUser(ev.StateKey, ev.UserData); err != nil {
			return err
		}
	case event.MembershipLeave, event.MembershipBan:
		// A transition away from the room for a user that was never
		// replicated is a no-op.
		_, ok, err := s.puppets.GetMXUser(s.ctx, ev.StateKey)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug().Str("membership", string(ev.Membership)).
				Msg("Dropping membership event for unreplicated user")
			return nil
		}
	}
	if err := s.sink(ev); err != nil {
		return err
	}
	s.noteMembership(ev.RoomID, ev.StateKey, ev.Membership)
	return nil
}

// ensureUser replicates the remote user unless a puppet mapping already
// exists. data, when nil, is fetched from the adapter.
func (s *provisioningStream[A, U, R, M]) ensureUser(user U, data *RemoteUser[U]) error {
	_, ok, err := s.puppets.GetMXUser(s.ctx, user)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if data == nil {
		data, err = s.inner.GetUser(s.ctx, s.actor, user)
		if err != nil {
			return fmt.Errorf("fetching user for replication: %w", err)
		}
	}
	return s.sink(UserCreate[U, R, M]{UserID: user, UserData: data})
}

// ensureRoom replicates the remote room unless a room mapping already
// exists, then replicates and joins its member set.
func (s *provisioningStream[A, U, R, M]) ensureRoom(room R, data *RemoteRoom[U, R]) error {
	bridged, err := s.rooms.IsRoomBridged(s.ctx, room)
	if err != nil {
		return err
	}
	if bridged {
		return nil
	}
	if data == nil {
		data, err = s.inner.GetRoom(s.ctx, s.actor, room)
		if err != nil {
			return fmt.Errorf("fetching room for replication: %w", err)
		}
	}
	// Puppets referenced by room creation must exist before the room does.
	if data.Creator != nil {
		if err := s.ensureUser(*data.Creator, nil); err != nil {
			return err
		}
	}
	if data.Direct != nil {
		for _, member := range data.Direct.Members {
			if err := s.ensureUser(member, nil); err != nil {
				return err
			}
		}
	}
	if err := s.sink(RoomCreate[U, R, M]{RoomID: room, RoomData: data}); err != nil {
		return err
	}
	return s.populateRoom(room, data)
}

// populateRoom joins the room's current member set after creation. Direct
// rooms use the fixed member list; others stream members from the adapter.
func (s *provisioningStream[A, U, R, M]) populateRoom(room R, data *RemoteRoom[U, R]) error {
	if data.Direct != nil {
		for _, member := range data.Direct.Members {
			if err := s.ensureJoined(room, member); err != nil {
				return err
			}
		}
		return nil
	}
	return s.inner.GetRoomMembers(s.ctx, s.actor, room, func(user U, userData *RemoteUser[U]) error {
		if err := s.ensureUser(user, userData); err != nil {
			return err
		}
		return s.ensureJoined(room, user)
	})
}

// ensureJoined synthesizes an INVITE (bot-initiated) followed by a JOIN
// for the user's puppet unless it is already in the room. Both land on the
// sink before the event that required the join, preserving causal order.
func (s *provisioningStream[A, U, R, M]) ensureJoined(room R, user U) error {
	mxid, ok, err := s.puppets.GetMXUser(s.ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("puppet for user %q not replicated before join", user.UsernamePart())
	}
	members, err := s.joinedMembers(room)
	if err != nil {
		return err
	}
	if _, in := members[mxid]; in {
		return nil
	}
	err = s.sink(RoomMembership[U, R, M]{
		RoomID:     room,
		StateKey:   user,
		Membership: event.MembershipInvite,
	})
	if err != nil {
		return err
	}
	err = s.sink(RoomMembership[U, R, M]{
		RoomID:     room,
		StateKey:   user,
		Membership: event.MembershipJoin,
	})
	if err != nil {
		return err
	}
	members[mxid] = struct{}{}
	return nil
}

func (s *provisioningStream[A, U, R, M]) joinedMembers(room R) (map[id.UserID]struct{}, error) {
	if members, ok := s.joined[room]; ok {
		return members, nil
	}
	roomID, ok, err := s.rooms.GetMXRoom(s.ctx, room)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("room %q not replicated before membership lookup", room.AliasPart())
	}
	members, err := s.client.JoinedMembers(s.ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.joined[room] = members
	return members, nil
}

func (s *provisioningStream[A, U, R, M]) noteMembership(room R, user U, membership event.Membership) {
	members, cached := s.joined[room]
	if !cached {
		return
	}
	mxid, ok, err := s.puppets.GetMXUser(s.ctx, user)
	if err != nil || !ok {
		return
	}
	switch membership {
	case event.MembershipJoin:
		members[mxid] = struct{}{}
	case event.MembershipLeave, event.MembershipBan:
		delete(members, mxid)
	}
}
