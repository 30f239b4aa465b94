// Package postgres persists documents, links, and supersession
// relationships in PostgreSQL with pgvector similarity search.
//
// Store implements the consumer interfaces of the retrieval, assembler, and
// supersession packages, scoped to a single tenant. All methods are safe for
// concurrent use.
package postgres
