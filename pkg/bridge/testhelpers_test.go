// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type actorID string

func (a actorID) AliasPart() string { return string(a) }

type userID string

func (u userID) UsernamePart() string { return string(u) }

type roomID string

func (r roomID) AliasPart() string { return string(r) }

type msgID string

type tEvent = WorkerEvent[userID, roomID, msgID]
type tSink = EventSink[userID, roomID, msgID]
type tRoomCreate = RoomCreate[userID, roomID, msgID]
type tUserCreate = UserCreate[userID, roomID, msgID]
type tRoomMessage = RoomMessage[userID, roomID, msgID]
type tMembership = RoomMembership[userID, roomID, msgID]
type tRealMembership = RealUserMembership[userID, roomID, msgID]
type tConnected = Connected[userID, roomID, msgID]
type tFatal = FatalFailure[userID, roomID, msgID]

const testDomain = "example.com"

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		HomeserverDomain: testDomain,
		BotLocalpart:     "bridgebot",
		PuppetPrefix:     "net_",
		RoomAliasPrefix:  "net_",
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

func testMapper() PrefixIDMapper[userID, roomID] {
	return PrefixIDMapper[userID, roomID]{
		RoomAliasPrefix:  "net_",
		PuppetPrefix:     "net_",
		HomeserverDomain: testDomain,
	}
}

// fakeRoom is one room's state inside fakeMatrixClient. Rooms are
// invite-only: joins without a standing invite come back M_FORBIDDEN,
// which is what the invite fallback paths rely on.
type fakeRoom struct {
	creator id.UserID
	members map[id.UserID]struct{}
	invited map[id.UserID]struct{}
	banned  map[id.UserID]struct{}
	state   map[string]json.RawMessage
}

type fakeSentMessage struct {
	Room   id.RoomID
	Sender id.UserID
	Body   string
	TxnID  string
}

type fakeNotice struct {
	Room    id.RoomID
	Text    string
	ReplyTo id.EventID
}

// fakeMatrixClient implements MatrixClient with enough homeserver
// semantics for pipeline tests: alias directory, invite-gated joins, and
// per-call ordering capture.
type fakeMatrixClient struct {
	mu         sync.Mutex
	registered map[string]struct{}
	names      map[id.UserID]string
	aliases    map[id.RoomAlias]id.RoomID
	rooms      map[id.RoomID]*fakeRoom
	nextRoom   int
	sent       []fakeSentMessage
	notices    []fakeNotice
	calls      []string

	createRoomErr error
	sendErr       error
	// registerErrs are returned by RegisterUser one at a time before it
	// starts succeeding.
	registerErrs []error
}

func newFakeMatrixClient() *fakeMatrixClient {
	return &fakeMatrixClient{
		registered: make(map[string]struct{}),
		names:      make(map[id.UserID]string),
		aliases:    make(map[id.RoomAlias]id.RoomID),
		rooms:      make(map[id.RoomID]*fakeRoom),
	}
}

func (c *fakeMatrixClient) record(format string, args ...any) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *fakeMatrixClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.calls))
	copy(cp, c.calls)
	return cp
}

func (c *fakeMatrixClient) RegisterUser(_ context.Context, localpart string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.registerErrs) > 0 {
		err := c.registerErrs[0]
		c.registerErrs = c.registerErrs[1:]
		return err
	}
	c.record("register %s", localpart)
	c.registered[localpart] = struct{}{}
	return nil
}

func (c *fakeMatrixClient) SetDisplayName(_ context.Context, user id.UserID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("displayname %s %s", user, name)
	c.names[user] = name
	return nil
}

func (c *fakeMatrixClient) CreateRoom(_ context.Context, req RoomCreateRequest) (id.RoomID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createRoomErr != nil {
		return "", c.createRoomErr
	}
	alias := id.NewRoomAlias(req.AliasLocalpart, testDomain)
	if _, taken := c.aliases[alias]; taken {
		return "", mautrix.MRoomInUse
	}
	c.nextRoom++
	roomID := id.RoomID(fmt.Sprintf("!room%d:%s", c.nextRoom, testDomain))
	room := &fakeRoom{
		creator: req.Creator,
		members: make(map[id.UserID]struct{}),
		invited: make(map[id.UserID]struct{}),
		banned:  make(map[id.UserID]struct{}),
		state:   make(map[string]json.RawMessage),
	}
	creator := req.Creator
	if creator == "" {
		creator = id.NewUserID("bridgebot", testDomain)
	}
	room.members[creator] = struct{}{}
	for _, invitee := range req.Invite {
		room.invited[invitee] = struct{}{}
	}
	c.rooms[roomID] = room
	c.aliases[alias] = roomID
	c.record("create %s", req.AliasLocalpart)
	return roomID, nil
}

func (c *fakeMatrixClient) ResolveAlias(_ context.Context, alias id.RoomAlias) (id.RoomID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roomID, ok := c.aliases[alias]
	return roomID, ok, nil
}

func (c *fakeMatrixClient) DeleteAlias(_ context.Context, alias id.RoomAlias) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.aliases[alias]; !ok {
		return mautrix.MNotFound
	}
	c.record("deletealias %s", alias)
	delete(c.aliases, alias)
	return nil
}

func (c *fakeMatrixClient) JoinedMembers(_ context.Context, roomID id.RoomID) (map[id.UserID]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return nil, mautrix.MNotFound
	}
	members := make(map[id.UserID]struct{}, len(room.members))
	for member := range room.members {
		members[member] = struct{}{}
	}
	return members, nil
}

func (c *fakeMatrixClient) InviteUser(_ context.Context, asUser id.UserID, roomID id.RoomID, target id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return mautrix.MNotFound
	}
	if _, in := room.members[asUser]; !in {
		return mautrix.MForbidden
	}
	if _, in := room.members[target]; in {
		return mautrix.MForbidden
	}
	c.record("invite %s by %s", target, asUser)
	room.invited[target] = struct{}{}
	return nil
}

func (c *fakeMatrixClient) JoinRoom(_ context.Context, asUser id.UserID, roomID id.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return mautrix.MNotFound
	}
	if _, banned := room.banned[asUser]; banned {
		return mautrix.MForbidden
	}
	if _, invited := room.invited[asUser]; !invited {
		if _, in := room.members[asUser]; !in {
			return mautrix.MForbidden
		}
	}
	c.record("join %s", asUser)
	delete(room.invited, asUser)
	room.members[asUser] = struct{}{}
	return nil
}

func (c *fakeMatrixClient) KnockRoom(_ context.Context, asUser id.UserID, roomID id.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("knock %s", asUser)
	return nil
}

func (c *fakeMatrixClient) LeaveRoom(_ context.Context, asUser id.UserID, roomID id.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return mautrix.MNotFound
	}
	c.record("leave %s", asUser)
	delete(room.members, asUser)
	return nil
}

func (c *fakeMatrixClient) KickUser(_ context.Context, asUser id.UserID, roomID id.RoomID, target id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return mautrix.MNotFound
	}
	if _, in := room.members[asUser]; !in {
		return mautrix.MForbidden
	}
	_, joined := room.members[target]
	_, invited := room.invited[target]
	if !joined && !invited {
		return mautrix.MForbidden
	}
	c.record("kick %s by %s", target, asUser)
	delete(room.members, target)
	delete(room.invited, target)
	return nil
}

func (c *fakeMatrixClient) BanUser(_ context.Context, asUser id.UserID, roomID id.RoomID, target id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return mautrix.MNotFound
	}
	if _, in := room.members[asUser]; !in {
		return mautrix.MForbidden
	}
	c.record("ban %s by %s", target, asUser)
	room.banned[target] = struct{}{}
	delete(room.members, target)
	return nil
}

func (c *fakeMatrixClient) SendMessage(_ context.Context, asUser id.UserID, roomID id.RoomID, content *event.MessageEventContent, txnID string) (id.EventID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		err := c.sendErr
		c.sendErr = nil
		return "", err
	}
	room, ok := c.rooms[roomID]
	if !ok {
		return "", mautrix.MNotFound
	}
	if _, in := room.members[asUser]; !in {
		return "", mautrix.MForbidden
	}
	c.record("send %s %s", asUser, txnID)
	c.sent = append(c.sent, fakeSentMessage{Room: roomID, Sender: asUser, Body: content.Body, TxnID: txnID})
	return id.EventID(fmt.Sprintf("$sent%d:%s", len(c.sent), testDomain)), nil
}

func (c *fakeMatrixClient) SendNotice(_ context.Context, roomID id.RoomID, text string, inReplyTo id.EventID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, fakeNotice{Room: roomID, Text: text, ReplyTo: inReplyTo})
	return nil
}

func (c *fakeMatrixClient) SendStateEvent(_ context.Context, asUser id.UserID, roomID id.RoomID, eventType event.Type, stateKey string, content any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return mautrix.MNotFound
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	c.record("state %s %s", eventType.Type, stateKey)
	room.state[eventType.Type+"/"+stateKey] = raw
	return nil
}

func (c *fakeMatrixClient) GetStateEvent(_ context.Context, roomID id.RoomID, eventType event.Type, stateKey string, into any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return false, mautrix.MNotFound
	}
	raw, ok := room.state[eventType.Type+"/"+stateKey]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, into)
}

// joinDirect marks a user as joined without the invite dance, for test
// setup.
func (c *fakeMatrixClient) joinDirect(roomID id.RoomID, user id.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID].members[user] = struct{}{}
}

// In-memory repository fakes. They enforce the same conflict rules as a
// real backend so persistence-ordering tests are meaningful.

type fakeActors struct {
	mu     sync.Mutex
	actor  actorID
	puppet id.UserID
	feed   chan []actorID
	route  func(ctx context.Context, evt *event.Event) (actorID, bool, error)
}

func newFakeActors(actor actorID) *fakeActors {
	return &fakeActors{actor: actor, feed: make(chan []actorID, 4)}
}

func (a *fakeActors) GetLocalUser(context.Context, actorID) (id.UserID, bool, error) {
	return "", false, nil
}

func (a *fakeActors) GetActorForEvent(ctx context.Context, evt *event.Event) (actorID, bool, error) {
	if a.route != nil {
		return a.route(ctx, evt)
	}
	return a.actor, true, nil
}

func (a *fakeActors) GetActorPuppet(context.Context, actorID) (id.UserID, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.puppet, a.puppet != "", nil
}

func (a *fakeActors) Actors(ctx context.Context) (<-chan []actorID, error) {
	return a.feed, nil
}

type fakePuppets struct {
	mu       sync.Mutex
	byRemote map[userID]id.UserID
	byMX     map[id.UserID]userID
}

func newFakePuppets() *fakePuppets {
	return &fakePuppets{byRemote: make(map[userID]id.UserID), byMX: make(map[id.UserID]userID)}
}

func (p *fakePuppets) GetMXUser(_ context.Context, remote userID) (id.UserID, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mxid, ok := p.byRemote[remote]
	return mxid, ok, nil
}

func (p *fakePuppets) GetRemoteUser(_ context.Context, mxid id.UserID) (userID, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	remote, ok := p.byMX[mxid]
	return remote, ok, nil
}

func (p *fakePuppets) Create(_ context.Context, mxid id.UserID, remote userID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.byRemote[remote]; ok {
		if existing == mxid {
			return nil
		}
		return fmt.Errorf("puppet conflict for %q", remote)
	}
	p.byRemote[remote] = mxid
	p.byMX[mxid] = remote
	return nil
}

type fakeRooms struct {
	mu        sync.Mutex
	byRemote  map[roomID]id.RoomID
	byMX      map[id.RoomID]roomID
	direct    map[roomID]bool
	actors    map[roomID]actorID
	createErr error
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{
		byRemote: make(map[roomID]id.RoomID),
		byMX:     make(map[id.RoomID]roomID),
		direct:   make(map[roomID]bool),
		actors:   make(map[roomID]actorID),
	}
}

func (r *fakeRooms) GetMXRoom(_ context.Context, remote roomID) (id.RoomID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mxRoom, ok := r.byRemote[remote]
	return mxRoom, ok, nil
}

func (r *fakeRooms) GetRemoteRoom(_ context.Context, mxRoom id.RoomID) (roomID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remote, ok := r.byMX[mxRoom]
	return remote, ok, nil
}

func (r *fakeRooms) Create(_ context.Context, actor actorID, mxRoom id.RoomID, remote roomID, direct bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if existing, ok := r.byRemote[remote]; ok {
		if existing == mxRoom {
			return nil
		}
		return fmt.Errorf("room conflict for %q", remote)
	}
	r.byRemote[remote] = mxRoom
	r.byMX[mxRoom] = remote
	r.direct[remote] = direct
	r.actors[remote] = actor
	return nil
}

func (r *fakeRooms) IsRoomBridged(_ context.Context, remote roomID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byRemote[remote]
	return ok, nil
}

type fakeMessages struct {
	mu       sync.Mutex
	byRemote map[msgID]id.EventID
	byEvent  map[id.EventID]msgID
	origins  map[msgID]string
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byRemote: make(map[msgID]id.EventID),
		byEvent:  make(map[id.EventID]msgID),
		origins:  make(map[msgID]string),
	}
}

func (m *fakeMessages) GetEventID(_ context.Context, remote msgID) (id.EventID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eventID, ok := m.byRemote[remote]
	return eventID, ok, nil
}

func (m *fakeMessages) GetMessageID(_ context.Context, eventID id.EventID) (msgID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remote, ok := m.byEvent[eventID]
	return remote, ok, nil
}

func (m *fakeMessages) create(remote msgID, eventID id.EventID, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byRemote[remote]; ok && existing != eventID {
		return fmt.Errorf("message conflict for %q", remote)
	}
	m.byRemote[remote] = eventID
	m.byEvent[eventID] = remote
	m.origins[remote] = origin
	return nil
}

func (m *fakeMessages) CreateByRemoteAuthor(_ context.Context, remote msgID, eventID id.EventID) error {
	return m.create(remote, eventID, "remote")
}

func (m *fakeMessages) CreateByMatrixAuthor(_ context.Context, remote msgID, eventID id.EventID) error {
	return m.create(remote, eventID, "matrix")
}

type fakeTxns struct {
	mu        sync.Mutex
	processed map[string]struct{}
	handled   map[string]map[id.EventID]struct{}
}

func newFakeTxns() *fakeTxns {
	return &fakeTxns{processed: make(map[string]struct{}), handled: make(map[string]map[id.EventID]struct{})}
}

func (t *fakeTxns) IsTransactionProcessed(_ context.Context, txnID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.processed[txnID]
	return ok, nil
}

func (t *fakeTxns) MarkTransactionProcessed(_ context.Context, txnID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed[txnID] = struct{}{}
	delete(t.handled, txnID)
	return nil
}

func (t *fakeTxns) HandledEvents(_ context.Context, txnID string) (map[id.EventID]struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := make(map[id.EventID]struct{}, len(t.handled[txnID]))
	for eventID := range t.handled[txnID] {
		events[eventID] = struct{}{}
	}
	return events, nil
}

func (t *fakeTxns) MarkEventHandled(_ context.Context, txnID string, eventID id.EventID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handled[txnID]; !ok {
		t.handled[txnID] = make(map[id.EventID]struct{})
	}
	t.handled[txnID][eventID] = struct{}{}
	return nil
}

// fakeRemoteWorker is a scriptable adapter: Events emits the scripted
// sequence then returns streamErr; HandleEvent records calls and returns
// handleErr (or defers to handleFn).
type fakeRemoteWorker struct {
	mu        sync.Mutex
	users     map[userID]*RemoteUser[userID]
	rooms     map[roomID]*RemoteRoom[userID, roomID]
	members   map[roomID][]userID
	script    []tEvent
	streamErr error
	block     bool
	started   chan actorID
	done      chan actorID
	handleErr error
	handleFn  func(ctx context.Context, scope EventHandlerScope[msgID], actor actorID, room roomID, evt *event.Event) error
	handled   []*event.Event
}

func newFakeRemoteWorker() *fakeRemoteWorker {
	return &fakeRemoteWorker{
		users:   make(map[userID]*RemoteUser[userID]),
		rooms:   make(map[roomID]*RemoteRoom[userID, roomID]),
		members: make(map[roomID][]userID),
	}
}

func (w *fakeRemoteWorker) addUser(user userID, name string) {
	w.users[user] = &RemoteUser[userID]{ID: user, DisplayName: name}
}

func (w *fakeRemoteWorker) addRoom(data *RemoteRoom[userID, roomID], members ...userID) {
	w.rooms[data.ID] = data
	w.members[data.ID] = members
}

func (w *fakeRemoteWorker) HandleEvent(ctx context.Context, scope EventHandlerScope[msgID], actor actorID, room roomID, evt *event.Event) error {
	w.mu.Lock()
	w.handled = append(w.handled, evt)
	fn := w.handleFn
	err := w.handleErr
	w.mu.Unlock()
	if fn != nil {
		return fn(ctx, scope, actor, room, evt)
	}
	return err
}

func (w *fakeRemoteWorker) Events(ctx context.Context, actor actorID, sink tSink) error {
	if w.started != nil {
		select {
		case w.started <- actor:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if w.done != nil {
		defer func() { w.done <- actor }()
	}
	for _, evt := range w.script {
		if err := sink(evt); err != nil {
			return err
		}
	}
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return w.streamErr
}

func (w *fakeRemoteWorker) GetUser(_ context.Context, _ actorID, user userID) (*RemoteUser[userID], error) {
	data, ok := w.users[user]
	if !ok {
		return nil, fmt.Errorf("unknown user %q", user)
	}
	return data, nil
}

func (w *fakeRemoteWorker) GetRoom(_ context.Context, _ actorID, room roomID) (*RemoteRoom[userID, roomID], error) {
	data, ok := w.rooms[room]
	if !ok {
		return nil, fmt.Errorf("unknown room %q", room)
	}
	return data, nil
}

func (w *fakeRemoteWorker) GetRoomMembers(_ context.Context, _ actorID, room roomID, yield func(userID, *RemoteUser[userID]) error) error {
	for _, member := range w.members[room] {
		if err := yield(member, w.users[member]); err != nil {
			return err
		}
	}
	return nil
}

// notifyRecorder captures operator notifications.
type notifyRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *notifyRecorder) notify(_ context.Context, message string, _ error, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message)
}

func (r *notifyRecorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.msgs))
	copy(cp, r.msgs)
	return cp
}

// testEnv assembles a full worker over fakes.
type testEnv struct {
	cfg      *Config
	client   *fakeMatrixClient
	actors   *fakeActors
	puppets  *fakePuppets
	rooms    *fakeRooms
	msgs     *fakeMessages
	txns     *fakeTxns
	remote   *fakeRemoteWorker
	notifier *notifyRecorder
	worker   *AppServiceWorker[actorID, userID, roomID, msgID]
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		cfg:      testConfig(t),
		client:   newFakeMatrixClient(),
		actors:   newFakeActors("acct1"),
		puppets:  newFakePuppets(),
		rooms:    newFakeRooms(),
		msgs:     newFakeMessages(),
		txns:     newFakeTxns(),
		remote:   newFakeRemoteWorker(),
		notifier: &notifyRecorder{},
	}
	repos := RepositorySet[actorID, userID, roomID, msgID]{
		Actors:       env.actors,
		Puppets:      env.puppets,
		Rooms:        env.rooms,
		Messages:     env.msgs,
		Transactions: env.txns,
	}
	worker, err := NewAppServiceWorker(WorkerOptions[actorID, userID, roomID, msgID]{
		Config:       env.cfg,
		Client:       env.client,
		Repositories: repos,
		Factory: func(WorkerAPI[userID, roomID, msgID]) RemoteWorker[actorID, userID, roomID, msgID] {
			return env.remote
		},
		Notifier: env.notifier.notify,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewAppServiceWorker: %v", err)
	}
	env.worker = worker
	return env
}

func puppetMXID(user userID) id.UserID {
	return id.NewUserID("net_"+string(user), testDomain)
}

func botMXID() id.UserID {
	return id.NewUserID("bridgebot", testDomain)
}

func matrixEvent(evtType event.Type, room id.RoomID, sender id.UserID, eventID id.EventID, parsed any) *event.Event {
	return &event.Event{
		Type:    evtType,
		RoomID:  room,
		Sender:  sender,
		ID:      eventID,
		Content: event.Content{Parsed: parsed},
	}
}

func messageEvent(room id.RoomID, sender id.UserID, eventID id.EventID, body string) *event.Event {
	return matrixEvent(event.EventMessage, room, sender, eventID, &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	})
}
