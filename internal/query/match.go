package query

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Shugur-Network/torstatus/internal/models"
)

// PublishedLayout is the text form of the published timestamp used for
// text comparisons and substring search.
const PublishedLayout = "2006-01-02 15:04:05"

// Match reports whether r satisfies every constraint of the spec.
func (s *Spec) Match(r *models.Relay) bool {
	if s == nil {
		return true
	}
	for _, c := range s.Constraints {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// Match evaluates a single constraint against r. A missing value (a relay
// without a directory port) never matches.
func (c Constraint) Match(r *models.Relay) bool {
	v, ok := r.Value(c.Field)
	if !ok || v == nil {
		return false
	}

	if c.Op == OpContains {
		needle, _ := c.Value.(string)
		return strings.Contains(textOf(v), needle)
	}

	switch want := c.Value.(type) {
	case int64:
		got, ok := numberOf(v)
		if !ok {
			return false
		}
		return compare(cmpInt(got, want), c.Op)
	case string:
		return compare(strings.Compare(textOf(v), want), c.Op)
	}
	return false
}

func compare(cmp int, op Operator) bool {
	switch op {
	case OpEquals:
		return cmp == 0
	case OpLess:
		return cmp < 0
	case OpGreater:
		return cmp > 0
	case OpLessEqual:
		return cmp <= 0
	}
	return false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func numberOf(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case time.Time:
		return t.UTC().Format(PublishedLayout)
	}
	return ""
}

// SortRelays orders relays in place by the given sort. Relays lacking the
// sort value go last in either direction and ties fall back to the
// fingerprint, matching the SQL the stores emit.
func SortRelays(relays []models.Relay, by Sort) {
	kind, ok := fieldKinds[by.Field]
	if !ok {
		return
	}
	desc := by.Direction == Descending

	sort.SliceStable(relays, func(i, j int) bool {
		a, _ := relays[i].Value(by.Field)
		b, _ := relays[j].Value(by.Field)
		switch {
		case a == nil && b == nil:
			return relays[i].Fingerprint < relays[j].Fingerprint
		case a == nil:
			return false
		case b == nil:
			return true
		}

		var cmp int
		switch kind {
		case KindNumber, KindFlag:
			x, _ := numberOf(a)
			y, _ := numberOf(b)
			cmp = cmpInt(x, y)
		case KindTime:
			cmp = a.(time.Time).Compare(b.(time.Time))
		default:
			cmp = strings.Compare(textOf(a), textOf(b))
		}
		if cmp == 0 {
			return relays[i].Fingerprint < relays[j].Fingerprint
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// Apply filters relays by the spec and orders the survivors. The input
// slice is not modified.
func (s *Spec) Apply(relays []models.Relay) []models.Relay {
	out := make([]models.Relay, 0, len(relays))
	for i := range relays {
		if s.Match(&relays[i]) {
			out = append(out, relays[i])
		}
	}
	SortRelays(out, s.OrderBy())
	return out
}
