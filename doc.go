// Package flexibledatarelay is a multi-tenant schema-less data relay.
//
// Tenants push arbitrary JSON entities over HTTP. The relay infers a
// JSON Schema for each entity collection, reconciles it with what it
// already knows, and exposes the data back out through two surfaces:
//
//   - A per-tenant GraphQL API, compiled on demand from the reconciled
//     schemas and scoped to the access grants the requesting tenant
//     holds.
//   - Subscriptions: entity mutations fan out to webhooks, JetStream
//     queues, and websocket sessions.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│             gateway                  │  HTTP surface: writes,
//	│  (tokens, writes, graphql, sdl, ws)  │  queries, admin
//	└──────────────────────────────────────┘
//	           ↓ delegates to
//	┌──────────────────────────────────────┐
//	│   entity · tenant · auth · graphql   │  Domain cores
//	└──────────────────────────────────────┘
//	     ↓ events            ↓ persistence
//	┌──────────────┐   ┌───────────────────┐
//	│  event bus   │   │ memstore/natsstore│
//	│ subscription │   │  (JetStream KV)   │
//	└──────────────┘   └───────────────────┘
//
// Every entity write flows through entity.Core, which owns schema
// inference and reconciliation. The schemacache package keeps a
// read-optimized snapshot of all tenant schemas, synchronized either
// from the in-process event bus (single process) or from the storage
// change feed (multiple processes).
//
// The composition root in cmd/flexible-data-relay selects the storage
// backend, the cache strategy, and the subscription transports from
// configuration.
package flexibledatarelay
