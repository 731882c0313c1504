// Package router implements the Event Router.
//
// Every decoded frame is classified into a protocol.Event and dispatched:
// agent activity, workflow updates and system status become records in
// bounded newest-first histories; stats frames replace the connection stats
// snapshot; subscription confirmations go to the subscription registry;
// agent replies settle correlated requests. Each routed frame also produces a
// user-facing notification.
package router
