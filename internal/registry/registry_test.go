package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()

	bot := Bot{
		ID:        "momentum-1",
		Name:      "BTC Momentum",
		Category:  CategoryTrend,
		Exchanges: []string{"binance"},
		Symbols:   []string{"BTCUSDT"},
		Enabled:   true,
	}
	require.NoError(t, r.Register(bot))

	got, err := r.Get("momentum-1")
	require.NoError(t, err)
	assert.Equal(t, bot, got)

	assert.Error(t, r.Register(bot), "duplicate id must be rejected")
	assert.Error(t, r.Register(Bot{Name: "no id"}))
}

func TestRegistry_Deregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Bot{ID: "a"}))

	require.NoError(t, r.Deregister("a"))
	_, err := r.Get("a")
	assert.Error(t, err)
	assert.Error(t, r.Deregister("a"))
}

func TestRegistry_ListSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Bot{ID: "c"}))
	require.NoError(t, r.Register(Bot{ID: "a"}))
	require.NoError(t, r.Register(Bot{ID: "b"}))

	bots := r.List()
	require.Len(t, bots, 3)
	assert.Equal(t, "a", bots[0].ID)
	assert.Equal(t, "c", bots[2].ID)
}

func TestRegistry_ListByCategory(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Bot{ID: "t1", Category: CategoryTrend, Enabled: true}))
	require.NoError(t, r.Register(Bot{ID: "t2", Category: CategoryTrend, Enabled: false}))
	require.NoError(t, r.Register(Bot{ID: "s1", Category: CategoryScalping, Enabled: true}))

	trend := r.ListByCategory(CategoryTrend)
	require.Len(t, trend, 1, "disabled bots are excluded")
	assert.Equal(t, "t1", trend[0].ID)
}

func TestRegistry_SetEnabled(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Bot{ID: "a", Category: CategoryTrend, Enabled: false}))

	require.NoError(t, r.SetEnabled("a", true))
	got, err := r.Get("a")
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	assert.Error(t, r.SetEnabled("missing", true))
}
