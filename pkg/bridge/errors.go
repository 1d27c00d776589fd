// Copyright 2024-2026 Aiku AI

package bridge

import (
	"errors"
	"fmt"

	"maunium.net/go/mautrix"
)

// UnhandledEventError reports an application-level failure to handle one
// inbound Matrix event: the event itself is at fault (unsupported type, too
// large, rejected by the remote network) and skipping it is correct. The
// orchestrator replies to the affected room with a notice and continues the
// batch.
//
// Infrastructure failures (network timeouts, database errors) must NOT be
// wrapped in this type; they abort the batch and are retried on redelivery.
type UnhandledEventError struct {
	// Message is shown to room members in the reply notice.
	Message string
	Cause   error
}

func (e *UnhandledEventError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("event not handled: %s: %v", e.Message, e.Cause)
	}
	return "event not handled: " + e.Message
}

func (e *UnhandledEventError) Unwrap() error {
	return e.Cause
}

// NoSuchActorError reports an operation against an actor the repositories
// no longer know. It is an expected race with actor removal; the
// supervision loop logs and reports it without tearing down the
// subscription.
type NoSuchActorError struct {
	Actor string
}

func (e *NoSuchActorError) Error() string {
	return "no such actor: " + e.Actor
}

// errFatalFailure terminates an actor's retry loop after a FatalFailure
// event. It never escapes the supervision loop.
var errFatalFailure = errors.New("remote worker reported fatal failure")

// internalError wraps an error raised while the orchestrator handled one
// already-delivered worker event, as opposed to an error from the stream
// itself. Both take the same backoff schedule but keep distinct counters.
type internalError struct {
	err error
}

func (e *internalError) Error() string {
	return "internal error handling worker event: " + e.err.Error()
}

func (e *internalError) Unwrap() error {
	return e.err
}

// Matrix error classification. Idempotency races are the only errors the
// pipeline layers are allowed to swallow.

func isUserInUse(err error) bool {
	return errors.Is(err, mautrix.MUserInUse)
}

func isRoomInUse(err error) bool {
	return errors.Is(err, mautrix.MRoomInUse)
}

func isForbidden(err error) bool {
	return errors.Is(err, mautrix.MForbidden)
}

func isNotFound(err error) bool {
	return errors.Is(err, mautrix.MNotFound)
}
