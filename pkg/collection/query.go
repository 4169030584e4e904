package collection

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/brewing/pkg/core"
)

// Direction is the sort direction of a view.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Compare orders two specifications like cmp.Compare.
type Compare func(a, b core.Specification) int

// View describes a derived projection of the snapshot.
// A nil Where matches everything, a nil OrderBy keeps snapshot order and a
// Limit of zero or less means unlimited.
type View struct {
	Where     func(core.Specification) bool
	OrderBy   Compare
	Direction Direction
	Limit     int
}

// By builds a Compare from an ordered key.
func By[K cmp.Ordered](key func(core.Specification) K) Compare {
	return func(a, b core.Specification) int {
		return cmp.Compare(key(a), key(b))
	}
}

// ByTime builds a Compare from a timestamp key.
func ByTime(key func(core.Specification) time.Time) Compare {
	return func(a, b core.Specification) int {
		return key(a).Compare(key(b))
	}
}

var (
	ByDateCreated = ByTime(func(s core.Specification) time.Time { return s.DateCreated })
	ByDateUpdated = ByTime(func(s core.Specification) time.Time { return s.DateUpdated })
	ByName        = By(func(s core.Specification) string { return strings.ToLower(s.Name) })
)

// Compute applies view to specs, which must be in snapshot order. Ties keep
// that order in both directions. The returned entities are copies.
func Compute(specs []core.Specification, view View) []core.Specification {
	out := make([]core.Specification, 0, len(specs))
	for _, spec := range specs {
		if view.Where == nil || view.Where(spec) {
			out = append(out, spec.Clone())
		}
	}

	if view.OrderBy != nil {
		order := view.OrderBy
		if view.Direction == Desc {
			order = func(a, b core.Specification) int { return view.OrderBy(b, a) }
		}
		slices.SortStableFunc(out, order)
	}

	if view.Limit > 0 && len(out) > view.Limit {
		out = out[:view.Limit]
	}
	return out
}

// Query computes view once over the current snapshot.
func (s *Store) Query(view View) []core.Specification {
	specs, _, _, _ := s.read()
	return Compute(specs, view)
}
