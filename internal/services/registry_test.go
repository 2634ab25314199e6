package services

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
)

func TestRegistrySubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	assert.True(t, r.Subscribe("c1", "alice"))
	assert.False(t, r.Subscribe("c1", "alice"))
	assert.Equal(t, []string{"alice"}, r.Names("c1"))

	// Duplicate detection is literal.
	assert.True(t, r.Subscribe("c1", "Alice"))
	assert.Equal(t, []string{"alice", "Alice"}, r.Names("c1"))
}

func TestRegistryUnsubscribe(t *testing.T) {
	r := NewRegistry(nil)

	assert.False(t, r.Unsubscribe("c1", "alice"))
	r.Subscribe("c1", "alice")
	r.Subscribe("c1", "bob")

	assert.False(t, r.Unsubscribe("c1", "ALICE"))
	assert.True(t, r.Unsubscribe("c1", "alice"))
	assert.False(t, r.Unsubscribe("c1", "alice"))
	assert.Equal(t, []string{"bob"}, r.Names("c1"))
}

func TestRegistryChannelsAreIndependent(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe("c1", "alice")
	r.Subscribe("c2", "alice")
	r.Unsubscribe("c1", "alice")

	assert.Empty(t, r.Names("c1"))
	assert.Equal(t, []string{"alice"}, r.Names("c2"))
	assert.Nil(t, r.Names("unknown"))
}

func TestRegistryMatch(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe("all", "*")
	r.Subscribe("alice", "Alice")
	r.Subscribe("bob", "bob")
	r.Subscribe("both", "bob")
	r.Subscribe("both", "alice")

	ids := func(name string) []string {
		var out []string
		for _, target := range r.Match(name) {
			out = append(out, target.ChannelID)
		}
		return out
	}

	assert.Equal(t, []string{"all", "alice", "both"}, ids("ALICE"))
	assert.Equal(t, []string{"all", "bob", "both"}, ids("bob"))
	assert.Equal(t, []string{"all"}, ids("carol"))
	assert.Equal(t, []string{"all"}, ids(""))
}

func TestRegistryCachesChannel(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe("c1", "*")
	assert.Nil(t, r.Match("x")[0].Channel)

	ch := &fakeChannel{id: "c1"}
	r.SetChannel("c1", ch)
	assert.Same(t, ch, r.Match("x")[0].Channel)
}

func TestRegistryStatsAndGauge(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry(m)
	r.Subscribe("c1", "alice")
	r.Subscribe("c1", "bob")
	r.Subscribe("c2", "*")
	r.Unsubscribe("c1", "bob")

	channels, names := r.Stats()
	assert.Equal(t, 2, channels)
	assert.Equal(t, 2, names)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscriptions))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Subscribe("c1", "*")
			r.Unsubscribe("c1", "*")
		}()
		go func() {
			defer wg.Done()
			_ = r.Match("alice")
		}()
	}
	wg.Wait()
}
