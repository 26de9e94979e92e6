package containers

// Handle addresses a slot of an Arena. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) IsZero() bool {
	return h.generation == 0
}

// Index returns the slot index, useful for logging.
func (h Handle) Index() uint32 {
	return h.index
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena stores values in reusable slots. A freed slot bumps its generation, so
// handles taken before the free stop resolving.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores value in a free slot, or a new one, and returns its handle.
func (a *Arena[T]) Insert(value T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.generation++
	if s.generation == 0 {
		// zero is reserved for the invalid handle
		s.generation = 1
	}
	s.value = value
	s.occupied = true
	a.count++
	return Handle{index: idx, generation: s.generation}
}

func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	return a.slots[h.index].value, true
}

// Remove frees the slot addressed by h and returns the value it held.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	s := &a.slots[h.index]
	v := s.value
	s.value = zero
	s.occupied = false
	a.free = append(a.free, h.index)
	a.count--
	return v, true
}

func (a *Arena[T]) Contains(h Handle) bool {
	return a.valid(h)
}

func (a *Arena[T]) Len() int {
	return a.count
}

// Each calls fn for every live value in slot order, stopping early when fn returns false.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Handle{index: uint32(i), generation: s.generation}, s.value) {
			return
		}
	}
}

func (a *Arena[T]) valid(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.index]
	return s.occupied && s.generation == h.generation
}
