package proximity

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/QYUbit/Replica/pkg/geom"
	"github.com/QYUbit/Replica/pkg/transport"
)

// Watcher is a peer backed entity that can observe others.
type Watcher struct {
	ID       uint32
	Peer     transport.PeerID
	Position geom.Vec3
}

func (w Watcher) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return coord(w.Position, d) - coord(c.(Watcher).Position, d)
}

func (w Watcher) Dims() int { return 3 }

// Distance is squared euclidean distance.
func (w Watcher) Distance(c kdtree.Comparable) float64 {
	return float64(w.Position.DistanceSquared(c.(Watcher).Position))
}

func coord(v geom.Vec3, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return float64(v.X)
	case 1:
		return float64(v.Y)
	default:
		return float64(v.Z)
	}
}

type watchers []Watcher

func (p watchers) Index(i int) kdtree.Comparable         { return p[i] }
func (p watchers) Len() int                              { return len(p) }
func (p watchers) Pivot(d kdtree.Dim) int                { return plane{watchers: p, Dim: d}.Pivot() }
func (p watchers) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	watchers
}

func (p plane) Less(i, j int) bool {
	return coord(p.watchers[i].Position, p.Dim) < coord(p.watchers[j].Position, p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.watchers = p.watchers[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.watchers[i], p.watchers[j] = p.watchers[j], p.watchers[i]
}

// Index answers radius queries over a snapshot of watcher positions.
type Index struct {
	tree *kdtree.Tree
	size int
}

// Rebuild replaces the snapshot. ws is reordered in place.
func (x *Index) Rebuild(ws []Watcher) {
	x.size = len(ws)
	if len(ws) == 0 {
		x.tree = nil
		return
	}
	x.tree = kdtree.New(watchers(ws), false)
}

func (x *Index) Len() int { return x.size }

// WithinRadius appends every watcher at most radius away from pos.
func (x *Index) WithinRadius(pos geom.Vec3, radius float32, dst []Watcher) []Watcher {
	if x.tree == nil {
		return dst
	}

	keep := kdtree.NewDistKeeper(float64(radius) * float64(radius))
	x.tree.NearestSet(keep, Watcher{Position: pos})

	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		dst = append(dst, c.Comparable.(Watcher))
	}
	return dst
}
