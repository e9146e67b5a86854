package cluster

import "time"

// MinGroupSize is the smallest run of chained overlapping items that is
// collapsed into a single group. Shorter runs render as individual items.
const MinGroupSize = 4

// TimeSpan is a closed-open time window. Both bounds are required.
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// TimedItem is anything the clusterer can place on a time axis.
// Span reports false when the item has no start or no end.
type TimedItem interface {
	Span() (TimeSpan, bool)
}

// Kind discriminates the two Result variants.
type Kind string

const (
	KindSingle Kind = "single"
	KindGroup  Kind = "group"
)

// Result is either a singleton wrapping one item unchanged or a group of at
// least MinGroupSize items, in sweep order.
type Result[T TimedItem] struct {
	Kind  Kind `json:"kind"`
	Items []T  `json:"items"`
}

// Single returns the wrapped item of a singleton cluster.
func (c Result[T]) Single() (T, bool) {
	var zero T
	if c.Kind != KindSingle || len(c.Items) != 1 {
		return zero, false
	}
	return c.Items[0], true
}

// Len is the number of items in the cluster.
func (c Result[T]) Len() int { return len(c.Items) }

// Overlaps reports whether b starts inside a, i.e. a.Start <= b.Start < a.End.
// It is not symmetric; see EffectiveOverlap.
func Overlaps(a, b TimeSpan) bool {
	return !b.Start.Before(a.Start) && b.Start.Before(a.End)
}

// EffectiveOverlap is Overlaps applied in both directions. Zero-duration
// spans never overlap anything.
func EffectiveOverlap(a, b TimeSpan) bool {
	if !a.Start.Before(a.End) || !b.Start.Before(b.End) {
		return false
	}
	return Overlaps(a, b) || Overlaps(b, a)
}

// Cluster groups chained overlapping items for calendar rendering.
//
// Items are swept in input order. Each scheduled item is compared only with
// the most recently added member of the current candidate group, so items
// overlapping an earlier member but not the last one start a new group.
// Unscheduled items close the current group and are emitted as singletons.
// A closed group with MinGroupSize or more members becomes one group cluster,
// otherwise its members are emitted as singletons.
func Cluster[T TimedItem](items []T) []Result[T] {
	out := make([]Result[T], 0, len(items))

	if len(items) < MinGroupSize {
		for _, it := range items {
			out = append(out, single(it))
		}
		return out
	}

	var (
		current []T
		last    TimeSpan
	)

	flush := func() {
		if len(current) >= MinGroupSize {
			out = append(out, Result[T]{Kind: KindGroup, Items: current})
		} else {
			for _, it := range current {
				out = append(out, single(it))
			}
		}
		current = nil
	}

	for _, it := range items {
		span, ok := it.Span()
		if !ok {
			flush()
			out = append(out, single(it))
			continue
		}

		if len(current) > 0 && !EffectiveOverlap(last, span) {
			flush()
		}
		current = append(current, it)
		last = span
	}
	flush()

	return out
}

func single[T TimedItem](it T) Result[T] {
	return Result[T]{Kind: KindSingle, Items: []T{it}}
}
