// Package session houses concrete implementations of the core.SessionStore.
// The interface itself (and the Session struct) live in the core package
// to centralize domain contracts. Keeping only implementations here prevents
// higher level packages (agents, runner) from depending on concrete storage.
//
// The default InMemoryStore is process local; the sqlite sub-package provides
// a durable variant with identical semantics. Additional backends (Redis,
// Postgres, Firestore, etc.) belong in further sub-packages without changing
// any calling code - only the wiring layer decides which implementation to
// instantiate.
package session
