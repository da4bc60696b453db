// Package resource provides owned-or-empty handles and arenas that release
// groups of GPU objects as a unit.
package resource

// Handle holds a value that is either owned or empty. The zero Handle is
// empty, so "destroyed but not yet recreated" is a checkable state instead of
// a null sentinel hiding inside the value.
type Handle[T any] struct {
	value T
	valid bool
}

// Own returns a Handle holding v.
func Own[T any](v T) Handle[T] {
	return Handle[T]{value: v, valid: true}
}

func (h Handle[T]) Valid() bool {
	return h.valid
}

// Get returns the held value and whether the handle is populated.
func (h Handle[T]) Get() (T, bool) {
	return h.value, h.valid
}

// MustGet returns the held value and panics on an empty handle.
func (h Handle[T]) MustGet() T {
	if !h.valid {
		panic("resource: MustGet on empty handle")
	}
	return h.value
}

func (h *Handle[T]) Set(v T) {
	h.value = v
	h.valid = true
}

// Take empties the handle and returns what it held.
func (h *Handle[T]) Take() (T, bool) {
	v, ok := h.value, h.valid
	h.Clear()
	return v, ok
}

func (h *Handle[T]) Clear() {
	var zero T
	h.value = zero
	h.valid = false
}
