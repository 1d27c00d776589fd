// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
)

// WorkerOptions configures an AppServiceWorker. Config, Client,
// Repositories and Factory are required; Mapper defaults to a
// PrefixIDMapper derived from the config and Notifier to NopNotifier.
type WorkerOptions[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	Config       *Config
	Client       MatrixClient
	Repositories RepositorySet[A, U, R, M]
	Factory      RemoteWorkerFactory[A, U, R, M]
	Mapper       IDMapper[U, R]
	Notifier     ErrorNotifier
	Logger       zerolog.Logger
}

// AppServiceWorker is the orchestrator: it feeds inbound homeserver
// transactions to the adapter with exactly-once-per-event semantics, and
// supervises one outbound event subscription per actor with exponential
// backoff.
type AppServiceWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID] struct {
	cfg      *Config
	client   MatrixClient
	repos    RepositorySet[A, U, R, M]
	adapter  RemoteWorker[A, U, R, M]
	pipeline *materializingWorker[A, U, R, M]
	notify   ErrorNotifier
	log      zerolog.Logger

	terminatedMu sync.Mutex
	terminated   map[A]struct{}
}

// NewAppServiceWorker assembles the full pipeline: the adapter built by the
// factory, wrapped by the auto-provisioning layer, wrapped by the
// materializing layer, driven by the returned orchestrator.
func NewAppServiceWorker[A RemoteActorID, U RemoteUserID, R RemoteRoomID, M RemoteMessageID](opts WorkerOptions[A, U, R, M]) (*AppServiceWorker[A, U, R, M], error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("bridge: missing config")
	case opts.Client == nil:
		return nil, errors.New("bridge: missing matrix client")
	case opts.Factory == nil:
		return nil, errors.New("bridge: missing remote worker factory")
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = PrefixIDMapper[U, R]{
			RoomAliasPrefix:  opts.Config.RoomAliasPrefix,
			PuppetPrefix:     opts.Config.PuppetPrefix,
			HomeserverDomain: opts.Config.HomeserverDomain,
		}
	}
	notify := opts.Notifier
	if notify == nil {
		notify = NopNotifier
	}

	adapter := opts.Factory(newWorkerAPI(opts.Repositories))
	provisioning := newProvisioningWorker(adapter, opts.Repositories, opts.Client, opts.Logger)
	materializing := newMaterializingWorker[A, U, R, M](provisioning, opts.Client, mapper, opts.Repositories, opts.Config, opts.Logger)

	return &AppServiceWorker[A, U, R, M]{
		cfg:        opts.Config,
		client:     opts.Client,
		repos:      opts.Repositories,
		adapter:    adapter,
		pipeline:   materializing,
		notify:     notify,
		log:        opts.Logger.With().Str("component", "worker").Logger(),
		terminated: make(map[A]struct{}),
	}, nil
}

// EnsureBotRegistered registers the bridge bot account, retrying with
// backoff until the homeserver answers. The bridge cannot operate without
// its bot, so a flaky homeserver at startup is waited out rather than
// reported. Safe to call on every startup.
func (w *AppServiceWorker[A, U, R, M]) EnsureBotRegistered(ctx context.Context) error {
	var b backoff
	for {
		err := w.client.RegisterUser(ctx, w.cfg.BotLocalpart)
		if err == nil || isUserInUse(err) {
			return nil
		}
		delay := b.Next()
		w.log.Err(err).Dur("delay", delay).Msg("Failed to register bridge bot, retrying")
		if !sleepCtx(ctx, delay) {
			return fmt.Errorf("registering bridge bot: %w", err)
		}
	}
}

// HandleTransaction processes one inbound homeserver transaction. The
// homeserver delivers transactions at least once; already-processed
// batches and already-handled events within a partially processed batch
// are skipped, so redelivery is harmless. An error return leaves the
// remaining events unmarked for the next delivery attempt.
func (w *AppServiceWorker[A, U, R, M]) HandleTransaction(ctx context.Context, txnID string, events []*event.Event) error {
	done, err := w.repos.Transactions.IsTransactionProcessed(ctx, txnID)
	if err != nil {
		return err
	}
	if done {
		w.log.Debug().Str("txn_id", txnID).Msg("Skipping already processed transaction")
		return nil
	}
	handled, err := w.repos.Transactions.HandledEvents(ctx, txnID)
	if err != nil {
		return err
	}

	for _, evt := range events {
		if _, ok := handled[evt.ID]; ok {
			continue
		}
		if err := w.handleMatrixEvent(ctx, evt); err != nil {
			w.notify(ctx, "aborting transaction "+txnID+" at event "+evt.ID.String(), err, true)
			return err
		}
		if err := w.repos.Transactions.MarkEventHandled(ctx, txnID, evt.ID); err != nil {
			return err
		}
	}
	return w.repos.Transactions.MarkTransactionProcessed(ctx, txnID)
}

func (w *AppServiceWorker[A, U, R, M]) handleMatrixEvent(ctx context.Context, evt *event.Event) error {
	log := w.log.With().Str("event_id", evt.ID.String()).Str("room_id", evt.RoomID.String()).Logger()

	// Accept invites for the bot before any other filtering; the room may
	// not be bridged yet.
	if evt.Type == event.StateMember && evt.GetStateKey() == w.cfg.BotUserID().String() {
		if member := evt.Content.AsMember(); member != nil && member.Membership == event.MembershipInvite {
			log.Info().Msg("Accepting invite for bridge bot")
			return w.client.JoinRoom(ctx, w.cfg.BotUserID(), evt.RoomID)
		}
	}

	// Events authored by our own puppets or the bot are echoes of outbound
	// replication; forwarding them back would loop.
	if w.cfg.IsBridgeControlled(evt.Sender) {
		return nil
	}
	if !w.cfg.SenderAllowed(evt.Sender) {
		log.Debug().Str("sender", evt.Sender.String()).Msg("Dropping event from disallowed sender")
		return nil
	}

	room, ok, err := w.repos.Rooms.GetRemoteRoom(ctx, evt.RoomID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	actor, ok, err := w.repos.Actors.GetActorForEvent(ctx, evt)
	if err != nil {
		var noActor *NoSuchActorError
		if errors.As(err, &noActor) {
			log.Warn().Err(err).Msg("Actor vanished while routing event")
			return nil
		}
		return err
	}
	if !ok {
		return nil
	}

	scope := &eventHandlerScope[M]{messages: w.repos.Messages, eventID: evt.ID}
	if err := w.adapter.HandleEvent(ctx, scope, actor, room, evt); err != nil {
		var unhandled *UnhandledEventError
		if !errors.As(err, &unhandled) {
			return err
		}
		log.Warn().Err(err).Msg("Event rejected by remote worker")
		if nerr := w.client.SendNotice(ctx, evt.RoomID, "Your message was not bridged: "+unhandled.Message, evt.ID); nerr != nil {
			log.Warn().Err(nerr).Msg("Failed to send rejection notice")
		}
	}
	return nil
}

// Run supervises outbound subscriptions until ctx is cancelled. The actor
// feed is diffed on every emission: new actors get a subscription, removed
// actors get theirs cancelled. Actors that reported a fatal failure stay
// terminated for the lifetime of the process.
func (w *AppServiceWorker[A, U, R, M]) Run(ctx context.Context) error {
	feed, err := w.repos.Actors.Actors(ctx)
	if err != nil {
		return fmt.Errorf("opening actor feed: %w", err)
	}

	var wg sync.WaitGroup
	running := make(map[A]context.CancelFunc)
	defer func() {
		for _, cancel := range running {
			cancel()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case actors, ok := <-feed:
			if !ok {
				return ctx.Err()
			}
			current := make(map[A]struct{}, len(actors))
			for _, actor := range actors {
				current[actor] = struct{}{}
			}
			for actor, cancel := range running {
				if _, keep := current[actor]; !keep {
					w.log.Info().Str("actor", actor.AliasPart()).Msg("Actor removed, stopping subscription")
					cancel()
					delete(running, actor)
				}
			}
			for _, actor := range actors {
				if _, already := running[actor]; already {
					continue
				}
				if w.isTerminated(actor) {
					continue
				}
				actorCtx, cancel := context.WithCancel(ctx)
				running[actor] = cancel
				wg.Add(1)
				go func(actor A) {
					defer wg.Done()
					w.runActor(actorCtx, actor)
				}(actor)
			}
		}
	}
}

// runActor keeps one actor's event stream open, reopening it on completion
// and on error. Stream failures and event handling failures advance
// separate backoff schedules; a successful connection resets both.
func (w *AppServiceWorker[A, U, R, M]) runActor(ctx context.Context, actor A) {
	log := w.log.With().Str("actor", actor.AliasPart()).Logger()
	var streamBackoff, handlerBackoff backoff

	for {
		err := w.pipeline.Events(ctx, actor, func(evt WorkerEvent[U, R, M]) error {
			return w.handleWorkerEvent(ctx, actor, &streamBackoff, &handlerBackoff, evt)
		})
		if ctx.Err() != nil {
			return
		}

		var delay time.Duration
		switch {
		case err == nil:
			// Clean completion is not a failure, reopen right away and
			// leave the backoff schedule alone.
			log.Debug().Msg("Event stream completed, reopening")
			continue
		case errors.Is(err, errFatalFailure):
			log.Error().Msg("Actor terminated after fatal failure")
			w.markTerminated(actor)
			return
		case isInternal(err):
			delay = handlerBackoff.Next()
			log.Err(err).Dur("delay", delay).Msg("Failed to handle remote event")
			w.notify(ctx, "failed to handle remote event for actor "+actor.AliasPart(), err, false)
		default:
			delay = streamBackoff.Next()
			log.Err(err).Dur("delay", delay).Msg("Event stream failed")
			w.notify(ctx, "event stream failed for actor "+actor.AliasPart(), err, false)
		}
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

func (w *AppServiceWorker[A, U, R, M]) handleWorkerEvent(ctx context.Context, actor A, streamBackoff, handlerBackoff *backoff, evt WorkerEvent[U, R, M]) error {
	err := w.applyWorkerEvent(ctx, actor, streamBackoff, handlerBackoff, evt)
	if err == nil {
		return nil
	}
	var noActor *NoSuchActorError
	if errors.As(err, &noActor) {
		// The actor was removed while its stream was still delivering. The
		// event is dropped; the subscription supervisor will tear the
		// stream down on the next feed emission.
		w.log.Warn().Err(err).Str("actor", actor.AliasPart()).Msg("Actor vanished while handling remote event")
		w.notify(ctx, "actor "+actor.AliasPart()+" vanished while handling remote event", err, false)
		return nil
	}
	return err
}

func (w *AppServiceWorker[A, U, R, M]) applyWorkerEvent(ctx context.Context, actor A, streamBackoff, handlerBackoff *backoff, evt WorkerEvent[U, R, M]) error {
	switch ev := evt.(type) {
	case Connected[U, R, M]:
		w.log.Info().Str("actor", actor.AliasPart()).Msg("Actor connected")
		streamBackoff.Reset()
		handlerBackoff.Reset()
		return nil
	case Disconnected[U, R, M]:
		w.log.Warn().Str("actor", actor.AliasPart()).Str("reason", ev.Reason).Msg("Actor disconnected")
		return nil
	case FatalFailure[U, R, M]:
		w.notify(ctx, "actor "+actor.AliasPart()+" failed permanently: "+ev.Reason, nil, true)
		return errFatalFailure
	case UserCreate[U, R, M]:
		if err := w.repos.Puppets.Create(ctx, ev.MXUserID, ev.UserID); err != nil {
			return &internalError{err: fmt.Errorf("persisting puppet mapping: %w", err)}
		}
		return nil
	case RoomCreate[U, R, M]:
		if err := w.repos.Rooms.Create(ctx, actor, ev.MXRoomID, ev.RoomID, ev.RoomData.IsDirect()); err != nil {
			return &internalError{err: fmt.Errorf("persisting room mapping: %w", err)}
		}
		// Only once the mapping is durable may the alias marker go away;
		// dropping it earlier would let a crash duplicate the room.
		if err := w.pipeline.ClearRoomIdempotencyMarker(ctx, ev.RoomID); err != nil {
			return &internalError{err: err}
		}
		return nil
	case RoomMessage[U, R, M]:
		if ev.MessageID == nil {
			return nil
		}
		if err := w.repos.Messages.CreateByRemoteAuthor(ctx, *ev.MessageID, ev.MXEventID); err != nil {
			return &internalError{err: fmt.Errorf("persisting message mapping: %w", err)}
		}
		return nil
	case RoomMembership[U, R, M], RealUserMembership[U, R, M]:
		// Already applied by the materializing layer; nothing to persist.
		return nil
	default:
		return &internalError{err: fmt.Errorf("unknown worker event %T", evt)}
	}
}

func (w *AppServiceWorker[A, U, R, M]) isTerminated(actor A) bool {
	w.terminatedMu.Lock()
	defer w.terminatedMu.Unlock()
	_, ok := w.terminated[actor]
	return ok
}

func (w *AppServiceWorker[A, U, R, M]) markTerminated(actor A) {
	w.terminatedMu.Lock()
	defer w.terminatedMu.Unlock()
	w.terminated[actor] = struct{}{}
}

func isInternal(err error) bool {
	var ie *internalError
	return errors.As(err, &ie)
}

// sleepCtx waits for d, returning false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
