package resource

// Arena records how to release every object created into it and releases
// them in reverse creation order. Objects created later may depend on objects
// created earlier, never the other way around, so LIFO order is also
// reverse-dependency order.
type Arena struct {
	releasers []releaser
}

type releaser struct {
	name    string
	release func()
}

func NewArena() *Arena {
	return &Arena{}
}

// Defer registers an arbitrary release step.
func (a *Arena) Defer(name string, release func()) {
	a.releasers = append(a.releasers, releaser{name: name, release: release})
}

// Manage stores v in h and registers destroy to run on Release. When the arena
// is released h is emptied before destroy runs.
func Manage[T any](a *Arena, name string, h *Handle[T], v T, destroy func(T)) {
	h.Set(v)
	a.Defer(name, func() {
		if v, ok := h.Take(); ok {
			destroy(v)
		}
	})
}

// Len reports how many release steps are pending.
func (a *Arena) Len() int {
	return len(a.releasers)
}

// Names lists pending release steps in the order Release would run them.
func (a *Arena) Names() []string {
	names := make([]string, 0, len(a.releasers))
	for i := len(a.releasers) - 1; i >= 0; i-- {
		names = append(names, a.releasers[i].name)
	}
	return names
}

// Release runs every pending step, newest first. Calling it again is a no-op
// until new objects are added.
func (a *Arena) Release() {
	for len(a.releasers) > 0 {
		last := a.releasers[len(a.releasers)-1]
		a.releasers = a.releasers[:len(a.releasers)-1]
		last.release()
	}
}
