// Package memory implements long-term conversational memory: a Service that
// ingests completed sessions into a pluggable Index and searches it with hard
// per-tenant isolation.
//
// Ingestion is idempotent. Every record carries the provenance of the event
// it came from (session id plus log position), and already-ingested
// provenance is skipped on re-ingest, so calling AddSessionToMemory after
// each turn only adds the new events. Index writes are retried with bounded
// exponential backoff before the ingest fails with core.ErrIngestion.
//
// KeywordStore is the default Index: an in-memory token-overlap ranker that
// needs no external backend. The memory/openai subpackage provides a
// semantic alternative on top of embedding vectors.
package memory
