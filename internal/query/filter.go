// Package query compiles user query options into a Spec: a conjunction of
// (field, operator, value) constraints and an optional sort. Storage
// backends translate a Spec into SQL; Match evaluates it in memory.
package query

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Shugur-Network/torstatus/internal/relayutil"
)

// Operator is a comparison applied to one relay field.
type Operator string

const (
	OpEquals    Operator = "eq"
	OpLess      Operator = "lt"
	OpGreater   Operator = "gt"
	OpLessEqual Operator = "lte"
	OpContains  Operator = "contains"
)

// Direction of a sort.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Option names understood by Compile.
const (
	OptSearchValue  = "searchValue"
	OptCriteria     = "criteria"
	OptBoolLogic    = "boolLogic"
	OptSortListings = "sortListings"
	OptSortOrder    = "sortOrder"
	OptResetQuery   = "resetQuery"
)

// Search operators as they arrive in boolLogic.
const (
	LogicContains = "contains"
	LogicLess     = "less"
	LogicGreater  = "greater"
	LogicEquals   = "equals"
)

// Kind describes how a field is stored.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindFlag
	KindTime
)

// FlagFields are the boolean relay flags that can be filtered with yes/no.
var FlagFields = []string{
	"isauthority", "isbaddirectory", "isbadexit", "isexit", "isfast",
	"isguard", "ishibernating", "isnamed", "isstable", "isrunning",
	"isvalid", "isv2dir",
}

// SearchFields are the fields a free-text search may target. uptime and
// bandwidthobserved are searched in user units (days, KB/s).
var SearchFields = []string{
	"nickname", "fingerprint", "country", "published", "hostname",
	"address", "orport", "dirport", "uptime", "bandwidthobserved",
}

// fieldKinds is the full sortable vocabulary.
var fieldKinds = map[string]Kind{
	"nickname":          KindText,
	"fingerprint":       KindText,
	"country":           KindText,
	"published":         KindTime,
	"hostname":          KindText,
	"address":           KindText,
	"platform":          KindText,
	"orport":            KindNumber,
	"dirport":           KindNumber,
	"uptime":            KindNumber,
	"bandwidthobserved": KindNumber,
}

func init() {
	for _, f := range FlagFields {
		fieldKinds[f] = KindFlag
	}
}

// FieldKind returns the storage kind of a vocabulary field.
func FieldKind(field string) (Kind, bool) {
	k, ok := fieldKinds[field]
	return k, ok
}

// IsSortable reports whether field belongs to the sort vocabulary.
func IsSortable(field string) bool {
	_, ok := fieldKinds[field]
	return ok
}

type displayUnit struct {
	size      int64
	toStorage func(int64) int64
}

// unitFields maps the fields searched in display units to the conversion
// into storage units.
var unitFields = map[string]displayUnit{
	"uptime":            {size: relayutil.Day, toStorage: relayutil.DaysToSeconds},
	"bandwidthobserved": {size: relayutil.KB, toStorage: relayutil.KBToBytes},
}

// scale converts n display units into storage units, refusing values whose
// product does not fit in an int64.
func (u displayUnit) scale(n int64) (int64, bool) {
	if n > math.MaxInt64/u.size || n < math.MinInt64/u.size {
		return 0, false
	}
	return u.toStorage(n), true
}

// Constraint is a single predicate. Value is an int64 for numeric and flag
// fields and a string otherwise.
type Constraint struct {
	Field string
	Op    Operator
	Value any
}

// Sort orders results by one field.
type Sort struct {
	Field     string
	Direction Direction
}

// DefaultSort is applied when a request carries no usable sort.
var DefaultSort = Sort{Field: "nickname", Direction: Ascending}

// Spec is a compiled query: all constraints must hold.
type Spec struct {
	Constraints []Constraint
	Sort        *Sort
}

// OrderBy returns the requested sort or DefaultSort.
func (s *Spec) OrderBy() Sort {
	if s == nil || s.Sort == nil {
		return DefaultSort
	}
	return *s.Sort
}

// ValidationError reports search input that cannot be applied.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid search value %q for %s: %s", e.Value, e.Field, e.Reason)
}

// Compile turns flat query options into a Spec. Options with an empty value
// are treated as absent. Unknown search or sort fields are ignored. A search
// value that must be numeric and is not yields a *ValidationError and no
// Spec.
func Compile(opts Options) (*Spec, error) {
	spec := &Spec{}

	for _, f := range FlagFields {
		v := opts[f]
		if v == "" {
			continue
		}
		var want int64
		if v == "yes" {
			want = 1
		}
		spec.Constraints = append(spec.Constraints, Constraint{Field: f, Op: OpEquals, Value: want})
	}

	if value := opts[OptSearchValue]; value != "" {
		cs, err := compileSearch(opts[OptCriteria], opts[OptBoolLogic], value)
		if err != nil {
			return nil, err
		}
		spec.Constraints = append(spec.Constraints, cs...)
	}

	if field := opts[OptSortListings]; IsSortable(field) {
		switch Direction(opts[OptSortOrder]) {
		case Ascending:
			spec.Sort = &Sort{Field: field, Direction: Ascending}
		case Descending:
			spec.Sort = &Sort{Field: field, Direction: Descending}
		}
	}

	return spec, nil
}

func isSearchField(field string) bool {
	for _, f := range SearchFields {
		if f == field {
			return true
		}
	}
	return false
}

func compileSearch(field, logic, value string) ([]Constraint, error) {
	if !isSearchField(field) {
		return nil, nil
	}

	if logic == LogicContains {
		return []Constraint{{Field: field, Op: OpContains, Value: value}}, nil
	}

	op := OpEquals
	switch logic {
	case LogicLess:
		op = OpLess
	case LogicGreater:
		op = OpGreater
	}

	kind := fieldKinds[field]
	if kind != KindNumber {
		return []Constraint{{Field: field, Op: op, Value: value}}, nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: field, Value: value, Reason: "not a whole number"}
	}

	unit, scaled := unitFields[field]
	if !scaled {
		return []Constraint{{Field: field, Op: op, Value: n}}, nil
	}

	upper, ok := unit.scale(n)
	if !ok {
		return nil, &ValidationError{Field: field, Value: value, Reason: "out of range"}
	}
	if op != OpEquals {
		return []Constraint{{Field: field, Op: op, Value: upper}}, nil
	}
	lower, ok := unit.scale(n - 1)
	if !ok {
		return nil, &ValidationError{Field: field, Value: value, Reason: "out of range"}
	}
	// equals on a unit field matches the display unit ending at n
	return []Constraint{
		{Field: field, Op: OpGreater, Value: lower},
		{Field: field, Op: OpLessEqual, Value: upper},
	}, nil
}
