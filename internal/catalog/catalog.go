// Package catalog implements the typed component registries: a generic,
// per-entity-kind registry mapping transient handles to typed domain
// entities, backed by a raw source buffer the server can re-broadcast to
// clients without re-serialising.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is a transient, densely-issued identifier for a catalog entity.
// It is unique within a running catalog for a given kind, not across
// kinds, and handle 0 is always the reserved null entity.
type Handle uint32

// Entity is satisfied by every concrete component kind (Product, Aperture,
// Material, ...). DatabaseID returns the stable row id the entity was
// sourced from; it is not necessarily unique within a kind (e.g. multiple
// Aperture handles may share the same database id across drawings).
type Entity interface {
	DatabaseID() uint32
}

// Decoder reads one entity's kind-specific fields from r. It must consume
// exactly the bytes the builder wrote for that element; anything else
// corrupts the remainder of the source buffer.
type Decoder[T Entity] func(id uint32, r *Reader) (T, error)

// Catalog is the generic per-kind registry. The zero value is not usable;
// construct with New.
type Catalog[T Entity] struct {
	mu sync.RWMutex

	entities   map[Handle]T
	handleToID map[Handle]uint32
	handles    []Handle

	dirty bool

	sourceData []byte
	sourceKind RequestKind

	callbacks []func()

	decode Decoder[T]
	null   T

	lastRebuildID uuid.UUID

	cache    HotCache
	cacheKey string
	cacheTTL time.Duration
}

// New builds an empty, dirty catalog for kind T. null is the entity
// installed at handle 0 after every Source call.
func New[T Entity](null T, decode Decoder[T]) *Catalog[T] {
	return &Catalog[T]{
		entities:   make(map[Handle]T),
		handleToID: make(map[Handle]uint32),
		dirty:      true,
		decode:     decode,
		null:       null,
	}
}

// Source replaces the catalog's contents wholesale: it parses
// [RequestKind | element_count | {handle, id, entity_bytes}*] from data,
// installs the null entity at handle 0, and fires every registered
// callback in registration order. Ownership of data passes to the
// catalog so it can be replayed verbatim to a client requesting the same
// table later.
func (c *Catalog[T]) Source(data []byte) error {
	r := NewReader(data)

	kind, err := r.RequestKind()
	if err != nil {
		return fmt.Errorf("catalog: reading request kind: %w", err)
	}
	count, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("catalog: reading element count: %w", err)
	}

	entities := make(map[Handle]T, count+1)
	handleToID := make(map[Handle]uint32, count+1)
	handles := make([]Handle, 0, count+1)

	// The null entity's handle is part of the issued sequence, so the
	// sequence is always one longer than the element count.
	entities[0] = c.null
	handleToID[0] = 0
	handles = append(handles, 0)

	for i := uint32(0); i < count; i++ {
		rawHandle, err := r.Uint32()
		if err != nil {
			return fmt.Errorf("catalog: reading element %d handle: %w", i, err)
		}
		id, err := r.Uint32()
		if err != nil {
			return fmt.Errorf("catalog: reading element %d id: %w", i, err)
		}
		entity, err := c.decode(id, r)
		if err != nil {
			return fmt.Errorf("catalog: decoding element %d: %w", i, err)
		}

		handle := Handle(rawHandle)
		entities[handle] = entity
		handleToID[handle] = id
		handles = append(handles, handle)
	}

	c.mu.Lock()
	c.entities = entities
	c.handleToID = handleToID
	c.handles = handles
	c.sourceData = data
	c.sourceKind = kind
	c.dirty = false
	c.lastRebuildID = uuid.New()
	callbacks := append([]func(){}, c.callbacks...)
	c.mu.Unlock()

	c.writeThrough(context.Background(), data)

	for _, cb := range callbacks {
		cb()
	}
	return nil
}

// GetByHandle returns the entity stored at h, or false if h is unknown.
func (c *Catalog[T]) GetByHandle(h Handle) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[h]
	return e, ok
}

// FindByID returns the first entity whose database id matches id.
func (c *Catalog[T]) FindByID(id uint32) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range c.handles {
		if c.handleToID[h] == id {
			return c.entities[h], true
		}
	}
	var zero T
	return zero, false
}

// AllByID returns every entity whose database id matches id.
func (c *Catalog[T]) AllByID(id uint32) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []T
	for _, h := range c.handles {
		if c.handleToID[h] == id {
			out = append(out, c.entities[h])
		}
	}
	return out
}

// MaxHandle returns the largest issued handle, or 0 if the catalog is
// empty (other than the reserved null entity).
func (c *Catalog[T]) MaxHandle() Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.handles) == 0 {
		return 0
	}
	max := c.handles[0]
	for _, h := range c.handles[1:] {
		if h > max {
			max = h
		}
	}
	return max
}

// Dirty reports whether the catalog must be rebuilt before its next
// Source*Table response.
func (c *Catalog[T]) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// MarkDirty requests a rebuild on the next source request without
// discarding the data currently held.
func (c *Catalog[T]) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
}

// AddCallback registers f to run, in order, at the end of every
// successful Source call.
func (c *Catalog[T]) AddCallback(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, f)
}

// RawSource returns the most recently sourced buffer verbatim, for
// re-broadcasting a Source*Table response without re-serialising.
func (c *Catalog[T]) RawSource() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sourceData
}

// LastRebuildID returns the correlation id stamped on the most recent
// Source call, for tying together the log lines and metrics a rebuild
// emits across the database and dispatch layers.
func (c *Catalog[T]) LastRebuildID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRebuildID
}

// HandleSet returns a copy of every issued handle, insertion ordered.
func (c *Catalog[T]) HandleSet() []Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Handle, len(c.handles))
	copy(out, c.handles)
	return out
}
