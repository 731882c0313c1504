// Package subscription implements the Subscription Registry component.
//
// The registry keeps two sets. The desired set is what callers asked for and
// is replayed after every reconnect. The confirmed set changes only when the
// hub acknowledges a subscribe or unsubscribe, so it always reflects the
// hub's last answer rather than the client's intent.
package subscription

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/rickgao/hubclient/internal/protocol"
)

// DefaultTopics is the starter set subscribed after every successful open.
var DefaultTopics = []string{"agent_activity", "workflow_updates", "system_status"}

// Sender writes a command to the hub.
type Sender interface {
	SendCommand(cmd protocol.Command) error
}

// Registry tracks desired and confirmed topics.
type Registry struct {
	sender Sender
	logger *slog.Logger

	mu        sync.RWMutex
	desired   map[string]struct{}
	confirmed map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sender:    sender,
		logger:    logger.With("component", "subscription"),
		desired:   make(map[string]struct{}),
		confirmed: make(map[string]struct{}),
	}
}

// Subscribe records topics as desired and asks the hub for them. The
// confirmed set is not touched.
func (r *Registry) Subscribe(topics ...string) error {
	topics = normalize(topics)
	if len(topics) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, t := range topics {
		r.desired[t] = struct{}{}
	}
	r.mu.Unlock()

	if err := r.sender.SendCommand(protocol.Subscribe(topics)); err != nil {
		return fmt.Errorf("subscribe %v: %w", topics, err)
	}
	r.logger.Debug("subscribe requested", "topics", topics)
	return nil
}

// Unsubscribe drops topics from the desired set and asks the hub to remove
// them.
func (r *Registry) Unsubscribe(topics ...string) error {
	topics = normalize(topics)
	if len(topics) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, t := range topics {
		delete(r.desired, t)
	}
	r.mu.Unlock()

	if err := r.sender.SendCommand(protocol.Unsubscribe(topics)); err != nil {
		return fmt.Errorf("unsubscribe %v: %w", topics, err)
	}
	r.logger.Debug("unsubscribe requested", "topics", topics)
	return nil
}

// Resubscribe asks for starter plus every desired topic in one command.
func (r *Registry) Resubscribe(starter []string) error {
	r.mu.RLock()
	all := make([]string, 0, len(starter)+len(r.desired))
	all = append(all, starter...)
	for t := range r.desired {
		all = append(all, t)
	}
	r.mu.RUnlock()

	all = normalize(all)
	if len(all) == 0 {
		return nil
	}
	if err := r.sender.SendCommand(protocol.Subscribe(all)); err != nil {
		return fmt.Errorf("resubscribe %v: %w", all, err)
	}
	r.logger.Info("subscribing", "topics", all)
	return nil
}

// Confirm applies a subscription_confirmed frame. Topics the client never
// asked for are applied too. Returns the acknowledged topics.
func (r *Registry) Confirm(topics []string) []string {
	topics = normalize(topics)

	r.mu.Lock()
	for _, t := range topics {
		r.confirmed[t] = struct{}{}
	}
	r.mu.Unlock()
	return topics
}

// ConfirmRemoval applies an unsubscription_confirmed frame.
func (r *Registry) ConfirmRemoval(topics []string) []string {
	topics = normalize(topics)

	r.mu.Lock()
	for _, t := range topics {
		delete(r.confirmed, t)
	}
	r.mu.Unlock()
	return topics
}

// Reset clears the confirmed set. Called when the transport closes.
func (r *Registry) Reset() {
	r.mu.Lock()
	clear(r.confirmed)
	r.mu.Unlock()
}

// Topics returns the confirmed topics, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.confirmed)
}

// Desired returns the topics callers asked for, sorted.
func (r *Registry) Desired() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.desired)
}

// normalize drops empty names and duplicates, keeping first-seen order.
func normalize(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
