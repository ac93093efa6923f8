// Package trail keeps a bounded history of world positions per entity for
// path rendering.
package trail

import (
	"sort"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// DefaultLength is the number of points kept per entity.
const DefaultLength = 300

// ring is a fixed-capacity FIFO of points.
type ring struct {
	points []geom.Vec2
	start  int
	size   int
}

func newRing(capacity int) *ring {
	return &ring{points: make([]geom.Vec2, capacity)}
}

func (r *ring) push(p geom.Vec2) {
	capacity := len(r.points)
	if r.size < capacity {
		r.points[(r.start+r.size)%capacity] = p
		r.size++
		return
	}
	r.points[r.start] = p
	r.start = (r.start + 1) % capacity
}

func (r *ring) appendTo(dst []geom.Vec2) []geom.Vec2 {
	for i := 0; i < r.size; i++ {
		dst = append(dst, r.points[(r.start+i)%len(r.points)])
	}
	return dst
}

// Buffer holds one trail per live entity id. Points are stored in world
// space so trails stay aligned when the camera pans or zooms.
type Buffer struct {
	length int
	trails map[int64]*ring
}

// New creates a Buffer keeping at most length points per entity. A length
// below one means DefaultLength.
func New(length int) *Buffer {
	if length < 1 {
		length = DefaultLength
	}
	return &Buffer{length: length, trails: make(map[int64]*ring)}
}

// Update removes every trail whose entity is absent from snap, then appends
// the current position of each present entity.
func (b *Buffer) Update(snap *protocol.Snapshot) {
	for id := range b.trails {
		if !snap.HasEntity(id) {
			delete(b.trails, id)
		}
	}
	for _, e := range snap.Entities {
		r, ok := b.trails[e.ID]
		if !ok {
			r = newRing(b.length)
			b.trails[e.ID] = r
		}
		r.push(e.Position)
	}
}

// Points returns a chronological copy of id's trail, oldest first.
func (b *Buffer) Points(id int64) []geom.Vec2 {
	r, ok := b.trails[id]
	if !ok {
		return nil
	}
	return r.appendTo(make([]geom.Vec2, 0, r.size))
}

// Has reports whether a trail exists for id.
func (b *Buffer) Has(id int64) bool {
	_, ok := b.trails[id]
	return ok
}

// Len is the number of tracked entities.
func (b *Buffer) Len() int {
	return len(b.trails)
}

// Each calls fn for every trail in ascending id order. The slice is reused
// between calls and must not be retained.
func (b *Buffer) Each(fn func(id int64, points []geom.Vec2)) {
	ids := make([]int64, 0, len(b.trails))
	for id := range b.trails {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var scratch []geom.Vec2
	for _, id := range ids {
		scratch = b.trails[id].appendTo(scratch[:0])
		fn(id, scratch)
	}
}

// Reset drops every trail.
func (b *Buffer) Reset() {
	clear(b.trails)
}
