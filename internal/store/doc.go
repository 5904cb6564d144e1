// Package store persists segments, batches, timeline cards, settings, and the
// digest send log in a single SQLite database. All multi-row lifecycle
// transitions (claim, complete, fail, crash recovery) are single transactions.
package store
