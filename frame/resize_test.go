package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestResizeRequestTakeClears(t *testing.T) {
	var r ResizeRequest

	_, ok := r.Take()
	require.False(t, ok)
	require.False(t, r.Pending())

	r.Request(800, 600)
	r.Request(1024, 768)
	require.True(t, r.Pending())

	e, ok := r.Take()
	require.True(t, ok)
	require.Equal(t, Extent{Width: 1024, Height: 768}, e)
	require.False(t, r.Pending())

	_, ok = r.Take()
	require.False(t, ok)
}

func TestResizeRequestRestoreKeepsNewerRequest(t *testing.T) {
	var r ResizeRequest

	r.restore(Extent{})
	e, ok := r.Take()
	require.True(t, ok)
	require.Equal(t, Extent{}, e)

	r.Request(640, 480)
	r.restore(Extent{})
	e, ok = r.Take()
	require.True(t, ok)
	require.Equal(t, Extent{Width: 640, Height: 480}, e)
}

func TestResizeRequestConcurrentWriters(t *testing.T) {
	var r ResizeRequest
	var group errgroup.Group

	const writers = 16
	for i := 1; i <= writers; i++ {
		i := i
		group.Go(func() error {
			for j := 0; j < 100; j++ {
				r.Request(i, i)
			}
			return nil
		})
	}

	taken := 0
	done := make(chan error)
	go func() { done <- group.Wait() }()

	for waiting := true; waiting; {
		select {
		case err := <-done:
			require.NoError(t, err)
			waiting = false
		default:
		}
		if e, ok := r.Take(); ok {
			// Width and height always come from the same writer.
			require.Equal(t, e.Width, e.Height)
			require.True(t, e.Width >= 1 && e.Width <= writers)
			taken++
		}
	}

	if e, ok := r.Take(); ok {
		require.Equal(t, e.Width, e.Height)
		taken++
	}
	require.Positive(t, taken)
	require.False(t, r.Pending())
}
