// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgekit/pkg/compat"
)

// materializingWorker turns abstract pipeline events into homeserver API
// calls. UserCreate and RoomCreate come back out annotated with the Matrix
// ids they produced so the orchestrator can persist the mappings; the other
// variants are executed in place and forwarded unchanged.
//
// Every operation here is resumable: puppet registration tolerates
// M_USER_IN_USE, and room creation uses the derived alias as a marker that
// survives a crash between homeserver call and mapping persistence. The
// marker is removed by the orchestrator through ClearRoomIdempotencyMarker
// once the mapping is durable.
type materializingWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	inner  RemoteWorker[A, U, R, M]
	client MatrixClient
	mapper IDMapper[U, R]
	rooms  RoomRepository[A, R]
	actors ActorRepository[A]
	cfg    *Config
	log    zerolog.Logger
}

func newMaterializingWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID](
	inner RemoteWorker[A, U, R, M],
	client MatrixClient,
	mapper IDMapper[U, R],
	repos RepositorySet[A, U, R, M],
	cfg *Config,
	log zerolog.Logger,
) *materializingWorker[A, U, R, M] {
	return &materializingWorker[A, U, R, M]{
		inner:  inner,
		client: client,
		mapper: mapper,
		rooms:  repos.Rooms,
		actors: repos.Actors,
		cfg:    cfg,
		log:    log.With().Str("component", "materializing").Logger(),
	}
}

func (w *materializingWorker[A, U, R, M]) HandleEvent(ctx context.Context, scope EventHandlerScope[M], actor A, room R, evt *event.Event) error {
	return w.inner.HandleEvent(ctx, scope, actor, room, evt)
}

func (w *materializingWorker[A, U, R, M]) GetUser(ctx context.Context, actor A, user U) (*RemoteUser[U], error) {
	return w.inner.GetUser(ctx, actor, user)
}

func (w *materializingWorker[A, U, R, M]) GetRoom(ctx context.Context, actor A, room R) (*RemoteRoom[U, R], error) {
	return w.inner.GetRoom(ctx, actor, room)
}

func (w *materializingWorker[A, U, R, M]) GetRoomMembers(ctx context.Context, actor A, room R, yield func(U, *RemoteUser[U]) error) error {
	return w.inner.GetRoomMembers(ctx, actor, room, yield)
}

func (w *materializingWorker[A, U, R, M]) Events(ctx context.Context, actor A, sink EventSink[U, R, M]) error {
	return w.inner.Events(ctx, actor, func(evt WorkerEvent[U, R, M]) error {
		switch ev := evt.(type) {
		case Connected[U, R, M], Disconnected[U, R, M], FatalFailure[U, R, M]:
			return sink(evt)
		case UserCreate[U, R, M]:
			mxid, err := w.replicateRemoteUser(ctx, ev)
			if err != nil {
				return err
			}
			ev.MXUserID = mxid
			return sink(ev)
		case RoomCreate[U, R, M]:
			roomID, err := w.replicateRemoteRoom(ctx, ev)
			if err != nil {
				return err
			}
			ev.MXRoomID = roomID
			return sink(ev)
		case RoomMembership[U, R, M]:
			if err := w.applyMembership(ctx, ev); err != nil {
				return err
			}
			return sink(ev)
		case RoomMessage[U, R, M]:
			eventID, err := w.sendMessage(ctx, actor, ev)
			if err != nil {
				return err
			}
			ev.MXEventID = eventID
			return sink(ev)
		case RealUserMembership[U, R, M]:
			if err := w.applyRealUserMembership(ctx, ev); err != nil {
				return err
			}
			return sink(ev)
		default:
			return &internalError{err: fmt.Errorf("unknown worker event %T", evt)}
		}
	})
}

// replicateRemoteUser registers the puppet account for a remote user and
// returns its Matrix id. Registering a localpart that already exists is the
// resume-after-crash path and is not an error.
func (w *materializingWorker[A, U, R, M]) replicateRemoteUser(ctx context.Context, ev UserCreate[U, R, M]) (id.UserID, error) {
	mxid := w.mapper.PuppetUserID(ev.UserID)
	localpart, _, err := mxid.Parse()
	if err != nil {
		return "", fmt.Errorf("derived puppet id %q: %w", mxid, err)
	}
	if err := w.client.RegisterUser(ctx, localpart); err != nil && !isUserInUse(err) {
		return "", fmt.Errorf("registering puppet %q: %w", mxid, err)
	}
	if ev.UserData != nil && ev.UserData.DisplayName != "" {
		if err := w.client.SetDisplayName(ctx, mxid, ev.UserData.DisplayName); err != nil {
			return "", fmt.Errorf("setting puppet display name: %w", err)
		}
	}
	return mxid, nil
}

// replicateRemoteRoom creates the Matrix room for a remote room and returns
// its id. The derived alias is attached at creation and resolved first, so
// an interrupted earlier attempt is found instead of duplicated.
func (w *materializingWorker[A, U, R, M]) replicateRemoteRoom(ctx context.Context, ev RoomCreate[U, R, M]) (id.RoomID, error) {
	if ev.RoomData == nil {
		return "", &internalError{err: fmt.Errorf("room create for %q reached materializing layer without data", ev.RoomID.AliasPart())}
	}
	alias := w.mapper.RoomAlias(ev.RoomID)

	roomID, found, err := w.client.ResolveAlias(ctx, alias)
	if err != nil {
		return "", fmt.Errorf("resolving alias %q: %w", alias, err)
	}
	if found {
		if err := w.verifyReusableRoom(ctx, alias, roomID); err != nil {
			return "", err
		}
		w.log.Debug().Str("alias", alias.String()).Str("room_id", roomID.String()).
			Msg("Reusing room left by an interrupted replication attempt")
		return roomID, nil
	}

	req := w.buildCreateRequest(alias, ev.RoomData)
	roomID, err = w.client.CreateRoom(ctx, req)
	if err != nil {
		if !isRoomInUse(err) {
			return "", fmt.Errorf("creating room for alias %q: %w", alias, err)
		}
		// Lost a race on the alias; resolve again.
		roomID, found, err = w.client.ResolveAlias(ctx, alias)
		if err != nil {
			return "", fmt.Errorf("resolving alias %q after conflict: %w", alias, err)
		}
		if !found {
			return "", fmt.Errorf("alias %q in use but unresolvable", alias)
		}
		if err := w.verifyReusableRoom(ctx, alias, roomID); err != nil {
			return "", err
		}
	}
	return roomID, nil
}

// verifyReusableRoom checks that the bridge bot is a member of a room
// found through its bootstrap alias. An aliased room without the bot was
// not left by an interrupted attempt and needs manual migration.
func (w *materializingWorker[A, U, R, M]) verifyReusableRoom(ctx context.Context, alias id.RoomAlias, roomID id.RoomID) error {
	members, err := w.client.JoinedMembers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("listing members of aliased room %q: %w", alias, err)
	}
	if _, in := members[w.cfg.BotUserID()]; !in {
		return fmt.Errorf("alias %q points at room %s without the bridge bot", alias, roomID)
	}
	return nil
}

func (w *materializingWorker[A, U, R, M]) buildCreateRequest(alias id.RoomAlias, data *RemoteRoom[U, R]) RoomCreateRequest {
	req := RoomCreateRequest{
		AliasLocalpart: aliasLocalpart(alias),
		Name:           data.DisplayName,
		IsDirect:       data.IsDirect(),
		ServiceMembers: []id.UserID{w.cfg.BotUserID()},
	}
	if data.Creator != nil {
		req.Creator = w.mapper.PuppetUserID(*data.Creator)
	}
	if data.Direct != nil {
		for _, member := range data.Direct.Members {
			if data.Creator != nil && member == *data.Creator {
				continue
			}
			req.Invite = append(req.Invite, w.mapper.PuppetUserID(member))
		}
	}
	req.Invite = append(req.Invite, data.RealMembers...)
	return req
}

// ClearRoomIdempotencyMarker removes the alias used to make room creation
// resumable. Creating with RoomAliasName also made the alias canonical, so
// the m.room.canonical_alias state is blanked as well; a dangling canonical
// alias would show up in clients long after the directory entry is gone.
// Called by the orchestrator strictly after the room mapping is persisted;
// removing the marker earlier would reopen the duplicate-room window.
func (w *materializingWorker[A, U, R, M]) ClearRoomIdempotencyMarker(ctx context.Context, room R) error {
	alias := w.mapper.RoomAlias(room)
	if err := w.client.DeleteAlias(ctx, alias); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting alias %q: %w", alias, err)
	}
	roomID, ok, err := w.rooms.GetMXRoom(ctx, room)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := w.client.SendStateEvent(ctx, w.cfg.BotUserID(), roomID, event.StateCanonicalAlias, "", &event.CanonicalAliasEventContent{}); err != nil {
		return fmt.Errorf("clearing canonical alias of %s: %w", roomID, err)
	}
	return nil
}

func aliasLocalpart(alias id.RoomAlias) string {
	s := strings.TrimPrefix(alias.String(), "#")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

// applyMembership translates a puppet membership transition into the
// corresponding homeserver call, resolving senders per the convention that
// a nil sender means the bridge bot.
func (w *materializingWorker[A, U, R, M]) applyMembership(ctx context.Context, ev RoomMembership[U, R, M]) error {
	roomID, ok, err := w.rooms.GetMXRoom(ctx, ev.RoomID)
	if err != nil {
		return err
	}
	if !ok {
		return &internalError{err: fmt.Errorf("membership in unreplicated room %q", ev.RoomID.AliasPart())}
	}
	target := w.mapper.PuppetUserID(ev.StateKey)
	sender := w.cfg.BotUserID()
	if ev.Sender != nil {
		sender = w.mapper.PuppetUserID(*ev.Sender)
	}

	switch ev.Membership {
	case event.MembershipInvite:
		if err := w.client.InviteUser(ctx, sender, roomID, target); err != nil {
			// Inviting a user who is already in the room is a race with a
			// concurrent join, not a failure.
			joined, jerr := w.isJoined(ctx, roomID, target)
			if jerr != nil || !joined {
				return err
			}
		}
		if ev.AsServiceMember {
			return w.addServiceMember(ctx, roomID, target)
		}
		return nil
	case event.MembershipJoin:
		if ev.Sender != nil && *ev.Sender != ev.StateKey {
			return &internalError{err: fmt.Errorf("join for %q sent by another user", target)}
		}
		return w.joinWithInviteFallback(ctx, roomID, target)
	case event.MembershipKnock:
		if ev.Sender != nil && *ev.Sender != ev.StateKey {
			return &internalError{err: fmt.Errorf("knock for %q sent by another user", target)}
		}
		return w.client.KnockRoom(ctx, target, roomID)
	case event.MembershipLeave:
		if ev.Sender != nil && *ev.Sender == ev.StateKey {
			return w.client.LeaveRoom(ctx, target, roomID)
		}
		if err := w.client.KickUser(ctx, sender, roomID, target); err != nil {
			// Kicking a user who already left is a race, not a failure.
			joined, jerr := w.isJoined(ctx, roomID, target)
			if jerr != nil || joined {
				return err
			}
		}
		return nil
	case event.MembershipBan:
		return w.client.BanUser(ctx, sender, roomID, target)
	default:
		return &internalError{err: fmt.Errorf("unsupported membership %q", ev.Membership)}
	}
}

func (w *materializingWorker[A, U, R, M]) isJoined(ctx context.Context, roomID id.RoomID, user id.UserID) (bool, error) {
	members, err := w.client.JoinedMembers(ctx, roomID)
	if err != nil {
		return false, err
	}
	_, in := members[user]
	return in, nil
}

// joinWithInviteFallback joins as the puppet, falling back to a bot invite
// and one retry when the room does not allow free joins.
func (w *materializingWorker[A, U, R, M]) joinWithInviteFallback(ctx context.Context, roomID id.RoomID, user id.UserID) error {
	err := w.client.JoinRoom(ctx, user, roomID)
	if err == nil || !isForbidden(err) {
		return err
	}
	if err := w.client.InviteUser(ctx, w.cfg.BotUserID(), roomID, user); err != nil {
		return err
	}
	return w.client.JoinRoom(ctx, user, roomID)
}

func (w *materializingWorker[A, U, R, M]) addServiceMember(ctx context.Context, roomID id.RoomID, user id.UserID) error {
	var content compat.ServiceMembersEventContent
	if _, err := w.client.GetStateEvent(ctx, roomID, compat.StateServiceMembers, "", &content); err != nil {
		return err
	}
	if !content.Add(user) {
		return nil
	}
	return w.client.SendStateEvent(ctx, w.cfg.BotUserID(), roomID, compat.StateServiceMembers, "", &content)
}

// applyRealUserMembership acts on a genuine local user. The bridge can
// never act as the target, so the representable transitions are invite,
// kick and ban; the target must not be bridge-controlled.
func (w *materializingWorker[A, U, R, M]) applyRealUserMembership(ctx context.Context, ev RealUserMembership[U, R, M]) error {
	if w.cfg.IsBridgeControlled(ev.StateKey) {
		return &internalError{err: fmt.Errorf("real-user membership targeting bridge-controlled %q", ev.StateKey)}
	}
	roomID, ok, err := w.rooms.GetMXRoom(ctx, ev.RoomID)
	if err != nil {
		return err
	}
	if !ok {
		return &internalError{err: fmt.Errorf("membership in unreplicated room %q", ev.RoomID.AliasPart())}
	}
	sender := w.cfg.BotUserID()
	if ev.Sender != nil {
		sender = w.mapper.PuppetUserID(*ev.Sender)
	}
	switch ev.Membership {
	case event.MembershipInvite:
		if err := w.client.InviteUser(ctx, sender, roomID, ev.StateKey); err != nil {
			// The user may have joined on the Matrix side before the remote
			// invite arrived; same race tolerance as for puppets.
			joined, jerr := w.isJoined(ctx, roomID, ev.StateKey)
			if jerr != nil || !joined {
				return err
			}
		}
		return nil
	case event.MembershipLeave:
		if err := w.client.KickUser(ctx, sender, roomID, ev.StateKey); err != nil {
			joined, jerr := w.isJoined(ctx, roomID, ev.StateKey)
			if jerr != nil || joined {
				return err
			}
		}
		return nil
	case event.MembershipBan:
		return w.client.BanUser(ctx, sender, roomID, ev.StateKey)
	default:
		return &internalError{err: fmt.Errorf("unsupported real-user membership %q", ev.Membership)}
	}
}

// sendMessage delivers a remote message as the sender's puppet. The remote
// event id doubles as the Matrix transaction id, so a resend after a crash
// dedups on the homeserver.
func (w *materializingWorker[A, U, R, M]) sendMessage(ctx context.Context, actor A, ev RoomMessage[U, R, M]) (id.EventID, error) {
	roomID, ok, err := w.rooms.GetMXRoom(ctx, ev.RoomID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &internalError{err: fmt.Errorf("message in unreplicated room %q", ev.RoomID.AliasPart())}
	}
	sender := w.mapper.PuppetUserID(ev.Sender)
	eventID, err := w.client.SendMessage(ctx, sender, roomID, ev.Content, string(ev.EventID))
	if err == nil || !isForbidden(err) {
		return eventID, err
	}
	// The puppet fell out of the room, e.g. kicked by a moderator.
	// Re-admit it and retry the send once.
	if err := w.readmitPuppet(ctx, actor, roomID, sender); err != nil {
		return "", err
	}
	return w.client.SendMessage(ctx, sender, roomID, ev.Content, string(ev.EventID))
}

// readmitPuppet brings a puppet back into a room it fell out of. When the
// puppet is the actor's own double it is also restored to the functional
// members state, since it represents the local user rather than a distinct
// remote participant.
func (w *materializingWorker[A, U, R, M]) readmitPuppet(ctx context.Context, actor A, roomID id.RoomID, puppet id.UserID) error {
	if err := w.joinWithInviteFallback(ctx, roomID, puppet); err != nil {
		return err
	}
	actorPuppet, ok, err := w.actors.GetActorPuppet(ctx, actor)
	if err != nil {
		return err
	}
	if !ok || actorPuppet != puppet {
		return nil
	}
	return w.addServiceMember(ctx, roomID, puppet)
}
