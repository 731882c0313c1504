// Package hub is the client facade for the event hub.
//
// A Client composes the Connection Manager, the Subscription Registry, the
// Request Correlation Layer and the Event Router behind one API. Lifecycle
// events from the manager drive the other components: an open that survives
// the settle delay subscribes to the default topics plus every topic the
// caller asked for, and a close clears the confirmed subscriptions and
// rejects every pending request.
//
// Instances are independent; tests inject a transport factory and a fake
// clock through options.
package hub
