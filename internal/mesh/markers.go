package mesh

// Tag identifies a boundary part. Zero means unmarked.
type Tag int

// Predicate selects nodes by position. onBoundary is true for nodes on the
// outer edge of the grid.
type Predicate func(p Point, onBoundary bool) bool

// Marker attaches a tag to the nodes selected by a predicate.
type Marker struct {
	Tag  Tag
	Name string
	Is   Predicate
}

// Mark tags every node of the grid. Markers are applied in order and a later
// match overrides an earlier one; nodes nobody selects keep tag 0.
func (g *Grid) Mark(markers ...Marker) []Tag {
	tags := make([]Tag, g.NumNodes())
	for k := range tags {
		i, j := g.IJ(k)
		p := g.Coords(k)
		on := g.OnBoundary(i, j)
		for _, m := range markers {
			if m.Is(p, on) {
				tags[k] = m.Tag
			}
		}
	}
	return tags
}

// And combines predicates
func And(ps ...Predicate) Predicate {
	return func(pt Point, on bool) bool {
		for _, p := range ps {
			if !p(pt, on) {
				return false
			}
		}
		return true
	}
}

// OnBoundary selects every boundary node.
func OnBoundary(_ Point, on bool) bool { return on }

// Nodes returns the indices carrying tag t.
func Nodes(tags []Tag, t Tag) []int {
	var out []int
	for k, tag := range tags {
		if tag == t {
			out = append(out, k)
		}
	}
	return out
}
