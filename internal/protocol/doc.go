// Package protocol implements the Frame Codec component.
//
// The event hub speaks JSON text frames. Every frame is a flat object with a
// "type" discriminator:
//   - Outbound commands: subscribe, unsubscribe, agent_process, workflow_start,
//     get_stats, ping
//   - Inbound frames are decoded into a Frame (tag + open field map) and then
//     classified into a closed set of Event variants, with Unknown as the
//     explicit catch-all
package protocol
