// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgekit/pkg/bridge"
)

type echoActorID string

func (a echoActorID) AliasPart() string { return string(a) }

type echoUserID string

func (u echoUserID) UsernamePart() string { return string(u) }

type echoRoomID string

func (r echoRoomID) AliasPart() string { return string(r) }

type echoMessageID string

const (
	echoActor echoActorID = "echo"
	echoUser  echoUserID  = "echo"
	echoRoom  echoRoomID  = "lobby"
)

// echoWorker is a minimal adapter against a pretend remote network: it
// greets on connect and echoes every bridged Matrix message back into the
// room through the echo puppet. It exists to exercise the full pipeline
// without external infrastructure.
type echoWorker struct {
	api     bridge.WorkerAPI[echoUserID, echoRoomID, echoMessageID]
	owner   id.UserID
	replies chan bridge.RoomMessage[echoUserID, echoRoomID, echoMessageID]
	log     zerolog.Logger
}

func newEchoWorker(owner id.UserID, log zerolog.Logger) bridge.RemoteWorkerFactory[echoActorID, echoUserID, echoRoomID, echoMessageID] {
	return func(api bridge.WorkerAPI[echoUserID, echoRoomID, echoMessageID]) bridge.RemoteWorker[echoActorID, echoUserID, echoRoomID, echoMessageID] {
		return &echoWorker{
			api:     api,
			owner:   owner,
			replies: make(chan bridge.RoomMessage[echoUserID, echoRoomID, echoMessageID], 16),
			log:     log.With().Str("component", "echo").Logger(),
		}
	}
}

func (w *echoWorker) HandleEvent(ctx context.Context, scope bridge.EventHandlerScope[echoMessageID], actor echoActorID, room echoRoomID, evt *event.Event) error {
	if evt.Type != event.EventMessage {
		return &bridge.UnhandledEventError{Message: "only m.room.message events reach the echo network"}
	}
	msg := evt.Content.AsMessage()
	if msg == nil {
		return &bridge.UnhandledEventError{Message: "malformed message content"}
	}
	// Delivery to the "network" is assigning the message a remote id.
	msgID := echoMessageID(xid.New().String())
	if err := scope.LinkMessageID(ctx, msgID); err != nil {
		return err
	}

	reply := bridge.RoomMessage[echoUserID, echoRoomID, echoMessageID]{
		RoomID:  room,
		EventID: bridge.RemoteEventID(xid.New().String()),
		Sender:  echoUser,
		Content: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    fmt.Sprintf("%s said: %s", evt.Sender, msg.Body),
		},
		MessageID: ptr.Ptr(echoMessageID(xid.New().String())),
	}
	select {
	case w.replies <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (w *echoWorker) Events(ctx context.Context, actor echoActorID, sink bridge.EventSink[echoUserID, echoRoomID, echoMessageID]) error {
	if err := sink(bridge.Connected[echoUserID, echoRoomID, echoMessageID]{}); err != nil {
		return err
	}
	bridged, err := w.api.IsRoomBridged(ctx, echoRoom)
	if err != nil {
		return err
	}
	if !bridged {
		greeting := bridge.RoomMessage[echoUserID, echoRoomID, echoMessageID]{
			RoomID:  echoRoom,
			EventID: bridge.RemoteEventID(xid.New().String()),
			Sender:  echoUser,
			Content: &event.MessageEventContent{
				MsgType: event.MsgText,
				Body:    "Echo network online. Anything you write here comes right back.",
			},
			MessageID: ptr.Ptr(echoMessageID(xid.New().String())),
		}
		if err := sink(greeting); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case reply := <-w.replies:
			if err := sink(reply); err != nil {
				return err
			}
		}
	}
}

func (w *echoWorker) GetUser(ctx context.Context, actor echoActorID, user echoUserID) (*bridge.RemoteUser[echoUserID], error) {
	return &bridge.RemoteUser[echoUserID]{ID: user, DisplayName: "Echo"}, nil
}

func (w *echoWorker) GetRoom(ctx context.Context, actor echoActorID, room echoRoomID) (*bridge.RemoteRoom[echoUserID, echoRoomID], error) {
	data := &bridge.RemoteRoom[echoUserID, echoRoomID]{
		ID:          room,
		DisplayName: "Echo Lobby",
	}
	if w.owner != "" {
		data.RealMembers = []id.UserID{w.owner}
	}
	return data, nil
}

func (w *echoWorker) GetRoomMembers(ctx context.Context, actor echoActorID, room echoRoomID, yield func(echoUserID, *bridge.RemoteUser[echoUserID]) error) error {
	return yield(echoUser, &bridge.RemoteUser[echoUserID]{ID: echoUser, DisplayName: "Echo"})
}
