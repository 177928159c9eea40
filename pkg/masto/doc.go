// Package masto provides types, interfaces and helpers for working with the
// Mastodon REST and streaming APIs.
//
// # Overview
//
// The masto package defines the entities (Status, Account, Notification, Tag,
// DomainAllow, ...) and the resource client interfaces (StatusesClient,
// TimelinesClient, StreamingClient, ...). The concrete implementation lives
// behind the mastoclient package, which wires configuration, transport,
// authentication and server version negotiation. Most consumers import
// mastoclient to construct a client and then use the interfaces exposed here.
//
// # Pagination
//
// List operations return a Paginator that follows the Link header cursors:
//
//	home := cli.Timelines().Home(&masto.ListParams{Limit: 40})
//	statuses, err := home.Collect(ctx, 200)
//
// # Errors
//
// Every operation fails with an *Error carrying an ErrorKind. Use errors.Is
// with the sentinels (ErrNotFound, ErrUnauthorized, ...) or the IsNotFound
// style helpers:
//
//	_, err := cli.Statuses().Get(ctx, "1")
//	if masto.IsNotFound(err) { ... }
//
// Operations introduced in a newer server release are checked against the
// negotiated version with VersionRange and fail with KindValidation before
// any request is sent.
//
// # Streaming
//
// Channels are built with the constructors (UserChannel, HashtagChannel,
// ListChannel, ...) or parsed from their textual key with ParseChannel.
// Events carry a typed payload reachable through Event.Status,
// Event.Notification, Event.DeletedID and friends.
//
// # Caching
//
// Negotiated server metadata can be shared between clients through a Cache:
// a MemoryCache, a NATSKVCache backed by a JetStream key-value bucket, or a
// CacheChain layering both.
package masto
