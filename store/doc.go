// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store provides the shared key-value slots that contexts coordinate
through: the leader lease, the broadcast trigger key, and settings.

# Implementations

  - Memory: in-process map with change notification and an optional quota
  - SQL: the shared_slot table, no change notification
  - Redis: plain keys plus a pub/sub notification channel

Stores that implement Watcher deliver a Change for every Set and Remove,
including those made by the watching context itself:

	cancel, err := store.Watch(s, func(c store.Change) { ... })

Watch returns ErrWatchUnsupported for stores without notification.
*/
package store
