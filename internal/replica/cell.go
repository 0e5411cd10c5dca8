// Package replica models replicated variables: values with a single
// authoritative writer whose changes are observed by every node.
package replica

import "errors"

// ErrNotAuthority is returned when a node that does not hold authority tries
// to write canonical state.
var ErrNotAuthority = errors.New("node is not the match authority")

// Authority reports whether the local node currently owns canonical state.
type Authority interface {
	IsAuthority() bool
}

// Role is the local node's authority flag. The transport promotes or demotes it.
type Role struct {
	authority bool
}

// NewRole returns a role starting with the given authority.
func NewRole(authority bool) *Role {
	return &Role{authority: authority}
}

func (r *Role) IsAuthority() bool { return r != nil && r.authority }

// Promote makes the local node the authority.
func (r *Role) Promote() { r.authority = true }

// Demote hands authority away; local writes are rejected afterwards.
func (r *Role) Demote() { r.authority = false }

// Cell is a replicated variable. Only the authority writes it through Set;
// observers receive remote values through Apply. Subscribers run on change.
type Cell[T comparable] struct {
	value  T
	owner  Authority
	subs   map[int]func(prev, next T)
	order  []int
	nextID int
}

// NewCell creates a cell holding initial, writable only while owner is authority.
func NewCell[T comparable](owner Authority, initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		owner: owner,
		subs:  make(map[int]func(prev, next T)),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T { return c.value }

// Set writes a new canonical value. It fails on non-authority nodes.
func (c *Cell[T]) Set(v T) error {
	if c.owner == nil || !c.owner.IsAuthority() {
		return ErrNotAuthority
	}
	c.store(v)
	return nil
}

// Apply stores a value received from the authority.
func (c *Cell[T]) Apply(v T) {
	c.store(v)
}

// Subscribe registers fn for change notifications. The returned func cancels it.
func (c *Cell[T]) Subscribe(fn func(prev, next T)) func() {
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	return func() {
		delete(c.subs, id)
	}
}

func (c *Cell[T]) store(v T) {
	if v == c.value {
		return
	}
	prev := c.value
	c.value = v

	// Subscribers may cancel or add subscriptions while being notified.
	ids := append([]int(nil), c.order...)
	live := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.subs[id]; ok {
			live = append(live, id)
		}
	}
	c.order = live

	for _, id := range ids {
		if fn, ok := c.subs[id]; ok {
			fn(prev, v)
		}
	}
}
