// Package request registers and runs HTTP requests on behalf of the host.
//
// A request id names a Task in the Registry for its whole life. Execute
// inserts a pending task before it returns; the exchange then runs on its own
// goroutine and its completion is delivered on a Scheduler worker:
//
//	pending --(response, CAS)--> streaming --(end of body / close)--> removed
//	pending --(network error)--> removed, OnError
//	pending | streaming --(Cancel)--> removed
//
// The pending to streaming step is a compare-and-swap on the exact task value
// the executor inserted, so a Cancel that removes the entry first suppresses
// every callback. Scheduler workers are locked to their OS threads and run
// the attach hook once, which lets deliveries call into a host runtime that
// requires attached threads.
package request
