// Package tasks implements the task repository.
//
// A Repository keeps an in-memory copy of the "tasks" collection and
// persists every mutation back to the store. Mutations re-read the stored
// collection, apply the change, and write it back with compare-and-swap on
// the collection version. A write that loses a race against another origin
// reloads and retries, so preconditions such as "only a published task can
// be claimed" are always checked against the latest persisted state.
//
// Lifecycle operations (claim, mark complete, confirm, request revision)
// go through lifecycle.Apply; every stored task passes lifecycle.Validate.
package tasks
