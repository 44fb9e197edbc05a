// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package leader elects one context to run singleton background work.

The lease is a models.LeaderRecord ({id, timestamp}) kept in a shared
store slot (DefaultKey). One round of Check:

 1. No record: write self and lead.
 2. Record older than StaleAfter (10s): overwrite with self and lead.
 3. Otherwise lead only if the record names this context.

Run repeats every Heartbeat (5s): the leader renews its timestamp, others
re-run Check. On shutdown Run resigns by deleting the record when it is
still ours.

There is no consensus here. Two contexts can briefly both believe they
lead; the next heartbeat settles it, and work gated on leadership must be
idempotent.
*/
package leader
