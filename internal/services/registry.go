package services

import (
	"strings"
	"sync"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

type subscription struct {
	names   []string
	channel ports.Channel
}

// Target is a channel that should receive a notification. Channel is nil
// until the handle has been resolved once.
type Target struct {
	ChannelID string
	Channel   ports.Channel
}

// Registry maps chat channels to the names they follow. It lives in memory
// only and is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]*subscription
	order   []string
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{subs: make(map[string]*subscription), metrics: m}
}

// entry returns the subscription of channelID, creating an empty one.
// Callers hold the write lock.
func (r *Registry) entry(channelID string) *subscription {
	s, ok := r.subs[channelID]
	if !ok {
		s = &subscription{}
		r.subs[channelID] = s
		r.order = append(r.order, channelID)
	}
	return s
}

// Subscribe adds name to the channel. It reports false if the channel already
// follows exactly that name.
func (r *Registry) Subscribe(channelID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.entry(channelID)
	for _, n := range s.names {
		if n == name {
			return false
		}
	}
	s.names = append(s.names, name)
	r.updateGauge()
	return true
}

// Unsubscribe removes name from the channel. It reports false if the channel
// did not follow exactly that name.
func (r *Registry) Unsubscribe(channelID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.entry(channelID)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			r.updateGauge()
			return true
		}
	}
	return false
}

// Names returns the names the channel follows, in subscription order.
func (r *Registry) Names(channelID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subs[channelID]
	if !ok {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Match returns every channel following the wildcard or name, compared
// case-insensitively. An empty name only matches the wildcard.
func (r *Registry) Match(name string) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []Target
	for _, id := range r.order {
		s := r.subs[id]
		for _, n := range s.names {
			if n == domain.Wildcard || (name != "" && strings.EqualFold(n, name)) {
				targets = append(targets, Target{ChannelID: id, Channel: s.channel})
				break
			}
		}
	}
	return targets
}

// SetChannel caches the resolved handle of a channel.
func (r *Registry) SetChannel(channelID string, ch ports.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(channelID).channel = ch
}

// Stats returns the number of known channels and of subscribed names.
func (r *Registry) Stats() (channels, names int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs), r.countLocked()
}

func (r *Registry) countLocked() int {
	total := 0
	for _, s := range r.subs {
		total += len(s.names)
	}
	return total
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.Subscriptions.Set(float64(r.countLocked()))
	}
}
