// Package storage holds the relay's persistence concerns: the entity
// query language shared by every backend, plus the backend adapters in
// its subpackages.
//
// memstore implements the entity and tenant stores in memory, for
// single-process deployments and tests. natsstore implements them over
// NATS JetStream key-value buckets and additionally provides the schema
// change feed used by the cache's feed strategy.
//
// Both backends honor the same contract, defined by entity.Store and
// tenant.Store; the query semantics of GetEntityList are defined here by
// ParseQuery and apply identically to both.
package storage
