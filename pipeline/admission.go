package pipeline

import (
	"sync"

	"github.com/gogpu/assettile/asset"
	"github.com/gogpu/assettile/tile"
)

// DefaultCapacity is the default admission ring size.
const DefaultCapacity = 8

// slot is an admitted request with its resource load already started.
type slot struct {
	req    tile.Request
	handle asset.Handle
}

// Admission is a bounded ring of admitted render requests backed by an
// unbounded FIFO overflow list. Requests in the ring have their resource
// load in progress; overflow requests are loaded when a slot frees up.
// It is safe for concurrent use.
type Admission struct {
	mu       sync.Mutex
	ring     []slot
	head     int
	n        int
	overflow []tile.Request
	load     func(tile.Request) asset.Handle
}

// NewAdmission creates an Admission with the given ring capacity. load is
// called, with the admission lock held, whenever a request enters the ring.
func NewAdmission(capacity int, load func(tile.Request) asset.Handle) *Admission {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Admission{ring: make([]slot, capacity), load: load}
}

// Push admits req into the ring if it has room, otherwise appends it to the
// overflow list. It reports whether req entered the ring.
func (a *Admission) Push(req tile.Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.n == len(a.ring) || len(a.overflow) > 0 {
		a.overflow = append(a.overflow, req)
		return false
	}
	a.admit(req)
	return true
}

func (a *Admission) admit(req tile.Request) {
	a.ring[(a.head+a.n)%len(a.ring)] = slot{req: req, handle: a.load(req)}
	a.n++
}

// Front returns the oldest admitted request without removing it.
func (a *Admission) Front() (slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.n == 0 {
		return slot{}, false
	}
	return a.ring[a.head], true
}

// Pop removes the oldest admitted request and refills the freed slot from
// the head of the overflow list.
func (a *Admission) Pop() (slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.n == 0 {
		return slot{}, false
	}
	s := a.ring[a.head]
	a.ring[a.head] = slot{}
	a.head = (a.head + 1) % len(a.ring)
	a.n--

	if len(a.overflow) > 0 {
		next := a.overflow[0]
		a.overflow[0] = tile.Request{}
		a.overflow = a.overflow[1:]
		a.admit(next)
	}
	return s, true
}

// Drain empties the ring and the overflow list and returns the handles of
// the admitted requests.
func (a *Admission) Drain() []asset.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	handles := make([]asset.Handle, 0, a.n)
	for i := range a.n {
		handles = append(handles, a.ring[(a.head+i)%len(a.ring)].handle)
	}
	clear(a.ring)
	a.head, a.n = 0, 0
	a.overflow = nil
	return handles
}

// Len returns the number of requests in the ring and in overflow.
func (a *Admission) Len() (ring, overflow int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n, len(a.overflow)
}

// Capacity returns the ring size.
func (a *Admission) Capacity() int {
	return len(a.ring)
}
