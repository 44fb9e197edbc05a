// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package transport carries serialized settings events between contexts.

# Implementations

  - HubChannel: in-process named channel; never echoes to the publisher
  - Redis: pub/sub channel shared by replicas; echoes to the publisher
  - StorageTrigger: writes the frame to a watched key, clears it after
    DefaultTriggerClearDelay (100ms)

# Selection

Select tries probes in order and returns the first transport that opens.
Failures are logged, not returned:

	primary := transport.Select(logger,
		transport.RedisProbe(ctx, rdb, "livedraw:settings", logger),
		transport.Probe{Name: "hub", Open: func() (transport.Transport, error) {
			return hub.Open("livedraw:settings"), nil
		}},
	)

A nil result means the broadcaster runs on the storage fallback alone.
*/
package transport
