// Copyright 2024-2026 Aiku AI

// Package matrix implements the homeserver client surface of the framework
// on top of a mautrix appservice: puppet operations run through intents
// impersonating the puppet via the application service token.
package matrix

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgekit/pkg/bridge"
	"github.com/aiku/bridgekit/pkg/compat"
)

// Client adapts an appservice to the bridge.MatrixClient contract.
type Client struct {
	as  *appservice.AppService
	log zerolog.Logger
}

var _ bridge.MatrixClient = (*Client)(nil)

func NewClient(as *appservice.AppService, log zerolog.Logger) *Client {
	return &Client{
		as:  as,
		log: log.With().Str("component", "matrix").Logger(),
	}
}

func (c *Client) intent(user id.UserID) *appservice.IntentAPI {
	if user == "" || user == c.as.BotMXID() {
		return c.as.BotIntent()
	}
	return c.as.Intent(user)
}

func (c *Client) RegisterUser(ctx context.Context, localpart string) error {
	intent := c.intent(id.NewUserID(localpart, c.as.HomeserverDomain))
	return intent.EnsureRegistered(ctx)
}

func (c *Client) SetDisplayName(ctx context.Context, user id.UserID, name string) error {
	return c.intent(user).SetDisplayName(ctx, name)
}

func (c *Client) CreateRoom(ctx context.Context, req bridge.RoomCreateRequest) (id.RoomID, error) {
	creator := c.intent(req.Creator)
	preset := "private_chat"
	if req.IsDirect {
		preset = "trusted_private_chat"
	}

	invite := req.Invite
	botID := c.as.BotMXID()
	if req.Creator != "" && req.Creator != botID {
		invite = append(invite, botID)
	}

	initialState := []*event.Event{{
		Type: compat.StateServiceMembers,
		Content: event.Content{
			Parsed: &compat.ServiceMembersEventContent{ServiceMembers: req.ServiceMembers},
		},
	}}

	// The bot administers every bridged room, also when a puppet creates it.
	var powerLevels *event.PowerLevelsEventContent
	if req.Creator != "" && req.Creator != botID {
		powerLevels = &event.PowerLevelsEventContent{
			Users: map[id.UserID]int{botID: 100},
		}
	}

	resp, err := creator.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		RoomAliasName:      req.AliasLocalpart,
		Name:               req.Name,
		Preset:             preset,
		IsDirect:           req.IsDirect,
		Invite:             invite,
		InitialState:       initialState,
		PowerLevelOverride: powerLevels,
	})
	if err != nil {
		return "", err
	}
	if req.Creator != "" && req.Creator != botID {
		if err := c.as.BotIntent().EnsureJoined(ctx, resp.RoomID); err != nil {
			return "", fmt.Errorf("joining bot to created room: %w", err)
		}
	}
	return resp.RoomID, nil
}

func (c *Client) ResolveAlias(ctx context.Context, alias id.RoomAlias) (id.RoomID, bool, error) {
	resp, err := c.as.BotClient().ResolveAlias(ctx, alias)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return resp.RoomID, true, nil
}

func (c *Client) DeleteAlias(ctx context.Context, alias id.RoomAlias) error {
	_, err := c.as.BotClient().DeleteAlias(ctx, alias)
	return err
}

func (c *Client) JoinedMembers(ctx context.Context, room id.RoomID) (map[id.UserID]struct{}, error) {
	resp, err := c.as.BotClient().JoinedMembers(ctx, room)
	if err != nil {
		return nil, err
	}
	members := make(map[id.UserID]struct{}, len(resp.Joined))
	for user := range resp.Joined {
		members[user] = struct{}{}
	}
	return members, nil
}

func (c *Client) InviteUser(ctx context.Context, asUser id.UserID, room id.RoomID, target id.UserID) error {
	_, err := c.intent(asUser).InviteUser(ctx, room, &mautrix.ReqInviteUser{UserID: target})
	return err
}

func (c *Client) JoinRoom(ctx context.Context, asUser id.UserID, room id.RoomID) error {
	_, err := c.intent(asUser).JoinRoomByID(ctx, room)
	return err
}

func (c *Client) KnockRoom(ctx context.Context, asUser id.UserID, room id.RoomID) error {
	_, err := c.intent(asUser).KnockRoom(ctx, room.String(), &mautrix.ReqKnockRoom{})
	return err
}

func (c *Client) LeaveRoom(ctx context.Context, asUser id.UserID, room id.RoomID) error {
	_, err := c.intent(asUser).LeaveRoom(ctx, room)
	return err
}

func (c *Client) KickUser(ctx context.Context, asUser id.UserID, room id.RoomID, target id.UserID) error {
	_, err := c.intent(asUser).KickUser(ctx, room, &mautrix.ReqKickUser{UserID: target})
	return err
}

func (c *Client) BanUser(ctx context.Context, asUser id.UserID, room id.RoomID, target id.UserID) error {
	_, err := c.intent(asUser).BanUser(ctx, room, &mautrix.ReqBanUser{UserID: target})
	return err
}

func (c *Client) SendMessage(ctx context.Context, asUser id.UserID, room id.RoomID, content *event.MessageEventContent, txnID string) (id.EventID, error) {
	// The intent's own SendMessageEvent cannot carry a transaction id, so
	// go through the embedded client. The txn id is what dedups a resend
	// after a crash, it must reach the homeserver.
	intent := c.intent(asUser)
	if err := intent.EnsureRegistered(ctx); err != nil {
		return "", err
	}
	resp, err := intent.Client.SendMessageEvent(ctx, room, event.EventMessage, content, mautrix.ReqSendEvent{TransactionID: txnID})
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (c *Client) SendNotice(ctx context.Context, room id.RoomID, text string, inReplyTo id.EventID) error {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	if inReplyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: inReplyTo},
		}
	}
	_, err := c.as.BotIntent().SendMessageEvent(ctx, room, event.EventMessage, content)
	return err
}

func (c *Client) SendStateEvent(ctx context.Context, asUser id.UserID, room id.RoomID, eventType event.Type, stateKey string, content any) error {
	_, err := c.intent(asUser).SendStateEvent(ctx, room, eventType, stateKey, content)
	return err
}

func (c *Client) GetStateEvent(ctx context.Context, room id.RoomID, eventType event.Type, stateKey string, into any) (bool, error) {
	err := c.as.BotClient().StateEvent(ctx, room, eventType, stateKey, into)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, mautrix.MNotFound)
}
