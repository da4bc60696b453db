package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleLifecycle(t *testing.T) {
	var h Handle[int]
	require.False(t, h.Valid())

	_, ok := h.Get()
	require.False(t, ok)
	require.Panics(t, func() { h.MustGet() })

	h.Set(7)
	v, ok := h.Get()
	require.True(t, ok)
	require.Equal(t, 7, v)

	v, ok = h.Take()
	require.True(t, ok)
	require.Equal(t, 7, v)
	require.False(t, h.Valid())

	_, ok = h.Take()
	require.False(t, ok)
}

func TestOwnZeroValueIsStillValid(t *testing.T) {
	h := Own(0)
	require.True(t, h.Valid())
	require.Equal(t, 0, h.MustGet())
}

func TestArenaReleasesInReverseOrder(t *testing.T) {
	var order []string
	arena := NewArena()

	var swapchain, views, pipeline Handle[string]
	Manage(arena, "swapchain", &swapchain, "sc", func(v string) { order = append(order, v) })
	Manage(arena, "views", &views, "iv", func(v string) { order = append(order, v) })
	arena.Defer("note", func() { order = append(order, "note") })
	Manage(arena, "pipeline", &pipeline, "pl", func(v string) { order = append(order, v) })

	require.Equal(t, 4, arena.Len())
	require.Equal(t, []string{"pipeline", "note", "views", "swapchain"}, arena.Names())

	arena.Release()
	require.Equal(t, []string{"pl", "note", "iv", "sc"}, order)
	require.False(t, swapchain.Valid())
	require.False(t, views.Valid())
	require.False(t, pipeline.Valid())
	require.Zero(t, arena.Len())

	arena.Release()
	require.Len(t, order, 4)
}

func TestArenaSkipsHandlesTakenEarly(t *testing.T) {
	destroyed := 0
	arena := NewArena()

	var h Handle[int]
	Manage(arena, "buffer", &h, 3, func(int) { destroyed++ })

	_, ok := h.Take()
	require.True(t, ok)

	arena.Release()
	require.Zero(t, destroyed)
}

func TestArenaReusableAfterRelease(t *testing.T) {
	destroyed := []int{}
	arena := NewArena()

	var h Handle[int]
	Manage(arena, "gen", &h, 1, func(v int) { destroyed = append(destroyed, v) })
	arena.Release()

	Manage(arena, "gen", &h, 2, func(v int) { destroyed = append(destroyed, v) })
	require.Equal(t, 2, h.MustGet())
	arena.Release()

	require.Equal(t, []int{1, 2}, destroyed)
}
