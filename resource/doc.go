// Package resource provides generational handle management for native objects
// handed out across the host boundary.
//
// The host only ever sees an opaque integer; the table maps it back to the Go
// value. Handle 0 is reserved and never issued, so the host can use it as the
// "no object" marker.
//
// # Handle Table
//
//	table := resource.NewTable[*Client]()
//
//	// Insert a value, get a handle
//	h, err := table.Insert(c)
//
//	// Retrieve value by handle
//	c, ok := table.Get(h)
//
//	// Remove and get value (destroy)
//	c, ok := table.Remove(h)
//
// # Stale Handles
//
// Each slot carries a generation that is bumped on removal. A handle whose
// value was removed never resolves again, even after the slot is reused, so a
// double destroy or a use-after-destroy is observed as a missing handle rather
// than as access to an unrelated object.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    switch e.Type {
//	    case resource.EventCreated:
//	        active.Inc()
//	    case resource.EventDropped:
//	        active.Dec()
//	    }
//	}))
//
// Values implementing Dropper have Drop called when they are removed,
// including when the table is closed.
package resource
