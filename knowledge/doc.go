// Package knowledge defines the domain types shared by the loom retrieval
// engine: documents, promotion levels, tenant identity, and per-query
// retrieval options.
//
// # Documents
//
// A document is identified by its relative path, stable and unique within a
// tenant. RetrievedDocument values are created by the retriever and treated
// as immutable afterward; they are copied by value into downstream buckets so
// concurrent queries never alias each other's results.
//
// # Promotion levels
//
// Documents carry a declared importance tier (standard, important, critical)
// that boosts retrieval ranking. Critical documents can additionally be
// injected into an assembled context unconditionally.
//
// # Options
//
// RetrievalOptions arrive already precedence-resolved from an external
// configuration layer. Validate rejects out-of-range values at the boundary
// before any retrieval work begins.
package knowledge
