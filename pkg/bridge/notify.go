// Copyright 2024-2026 Aiku AI

package bridge

import "context"

// ErrorNotifier surfaces operational failures to bridge operators, for
// example as a message in a management room. Critical notifications denote
// permanent failures that stopped a subscription.
type ErrorNotifier func(ctx context.Context, message string, cause error, critical bool)

// NopNotifier discards all notifications.
func NopNotifier(context.Context, string, error, bool) {}
