// Package poller implements the Stats Poller component.
//
// The Stats Poller:
//   - Sends get_stats to the hub on a fixed interval
//   - Skips a cycle quietly while the client is not connected
//   - Leaves the answer to the Event Router, which replaces the connection
//     stats snapshot when the stats frame arrives
package poller
