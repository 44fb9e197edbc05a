// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package syncer propagates settings changes between contexts.

# Service

A Service is constructed once per context and closed at shutdown:

	svc := syncer.New(syncer.Options{
		Primary:  transport.Select(logger, probes...),
		Fallback: trigger,
		Facade:   db.NewSettingsRepo(conn),
	})
	defer svc.Close()

Broadcast publishes on the primary transport (when one was selected) and
always on the fallback. Local listeners registered with SubscribeLocal run
first, synchronously; transport errors are logged and dropped.

# Delivery Rules

Listeners registered with Subscribe see an incoming event only when:

  - its OriginID differs from the service's own
  - its Timestamp is greater than the last one applied for its kind

The second rule makes duplicate delivery over both transports harmless and
keeps the newest whole-object write.

# Refresher

Refresher is the leader's periodic job: it watches facade versions and
rebroadcasts settings edited outside the process (for example directly in
the CMS).
*/
package syncer
