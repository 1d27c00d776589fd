// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"

	"maunium.net/go/mautrix/id"
)

// eventHandlerScope records the remote message id produced while handling
// a single Matrix event, linking it back to the originating event.
type eventHandlerScope[M RemoteMessageID] struct {
	messages MessageRepository[M]
	eventID  id.EventID
}

func (s *eventHandlerScope[M]) LinkMessageID(ctx context.Context, remoteID M) error {
	return s.messages.CreateByMatrixAuthor(ctx, remoteID, s.eventID)
}
