package services

import (
	"context"
	"errors"
	"sync"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

type fakeChannel struct {
	id      string
	mu      sync.Mutex
	got     []domain.Notification
	sendErr error
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(_ context.Context, n domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.got = append(c.got, n)
	return nil
}

func (c *fakeChannel) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, n := range c.got {
		out = append(out, n.Title)
	}
	return out
}

// fakeChannels resolves every id in channels. Ids listed in failing fail
// until removed.
type fakeChannels struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	failing  map[string]bool
	resolves map[string]int
}

func newFakeChannels(ids ...string) *fakeChannels {
	f := &fakeChannels{
		channels: make(map[string]*fakeChannel),
		failing:  make(map[string]bool),
		resolves: make(map[string]int),
	}
	for _, id := range ids {
		f.channels[id] = &fakeChannel{id: id}
	}
	return f
}

func (f *fakeChannels) Channel(_ context.Context, id string) (ports.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves[id]++
	ch, ok := f.channels[id]
	if !ok || f.failing[id] {
		return nil, errors.New("chat not found")
	}
	return ch, nil
}

func (f *fakeChannels) setFailing(id string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[id] = failing
}

func (f *fakeChannels) resolveCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves[id]
}

type fakeResolver struct {
	users  map[string]domain.User
	owners map[string]string
	repos  map[string]domain.RepositoryRef
}

func (r *fakeResolver) GetUser(_ context.Context, address string) (domain.User, error) {
	if u, ok := r.users[address]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *fakeResolver) ResolveAddress(_ context.Context, owner domain.Owner) (string, error) {
	if name, ok := r.owners[owner.ID]; ok {
		return name, nil
	}
	return "", domain.ErrNotFound
}

func (r *fakeResolver) GetRepositoryOwnerAndName(_ context.Context, id string) (domain.RepositoryRef, error) {
	if ref, ok := r.repos[id]; ok {
		return ref, nil
	}
	return domain.RepositoryRef{}, domain.ErrNotFound
}
