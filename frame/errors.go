package frame

import "github.com/cockroachdb/errors"

// ErrFenceTimeout is returned, wrapped, when a fence wait runs past the
// configured timeout. With NoTimeout it is never produced.
var ErrFenceTimeout = errors.New("fence wait timed out")

// ErrClosed is returned by DrawFrame and RecreateSwapchain after Close.
var ErrClosed = errors.New("scheduler is closed")
