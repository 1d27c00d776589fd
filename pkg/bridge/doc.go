// Copyright 2024-2026 Aiku AI

// Package bridge is a framework for Matrix application-service bridges.
//
// A deployment supplies three things: an adapter implementing
// [RemoteWorker] for its remote network, a [RepositorySet] backed by
// durable storage, and a [MatrixClient]. The framework supplies the rest:
// an [AppServiceWorker] that routes inbound homeserver transactions to the
// adapter and supervises a per-actor subscription to remote events, an
// auto-provisioning layer that replicates rooms and users on first
// reference, and a materializing layer that executes pipeline events
// against the homeserver.
//
// Outbound events flow through a synchronous pipeline of sinks, so an
// event emitted by the adapter does not return until every derived Matrix
// operation is done and every derived mapping is persisted. Combined with
// deterministic aliases and usernames as idempotency tokens, this makes
// replication safe to interrupt and resume at any point.
package bridge
