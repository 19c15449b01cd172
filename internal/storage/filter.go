package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/query"
)

// dialect captures what differs between the two SQL backends.
type dialect struct {
	name string
	// bind returns the placeholder of the n-th argument (1-based).
	bind func(n int) string
	// contains is a format taking the column expression and a placeholder.
	contains string
	// collate is appended to text columns so comparisons and ordering are
	// bytewise, like Go string comparison.
	collate string
}

var (
	postgresDialect = dialect{
		name:     "postgres",
		bind:     func(n int) string { return "$" + strconv.Itoa(n) },
		contains: "strpos(CAST(%s AS TEXT), %s) > 0",
		collate:  ` COLLATE "C"`,
	}
	sqliteDialect = dialect{
		name:     "sqlite",
		bind:     func(int) string { return "?" },
		contains: "instr(CAST(%s AS TEXT), %s) > 0",
	}
)

var sqlOperators = map[query.Operator]string{
	query.OpEquals:    "=",
	query.OpLess:      "<",
	query.OpGreater:   ">",
	query.OpLessEqual: "<=",
}

// builder accumulates a statement and its arguments.
type builder struct {
	d    dialect
	sb   strings.Builder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.bind(len(b.args))
}

func (b *builder) column(field string) string {
	if kind, _ := query.FieldKind(field); kind == query.KindText || kind == query.KindTime {
		return field + b.d.collate
	}
	return field
}

// currentSnapshot restricts a statement to the latest valid-after time.
var currentSnapshot = fmt.Sprintf(
	"valid_after = (SELECT MAX(valid_after) FROM %s)", constants.RelayTable)

// selectRelays starts a SELECT of relayColumns over the current snapshot.
func (b *builder) selectRelays() {
	fmt.Fprintf(&b.sb, "SELECT %s FROM %s WHERE %s",
		strings.Join(relayColumns, ", "), constants.RelayTable, currentSnapshot)
}

// where appends one constraint. Field names come from the query
// vocabulary, never from user input.
func (b *builder) where(c query.Constraint) error {
	kind, ok := query.FieldKind(c.Field)
	if !ok {
		return fmt.Errorf("unknown filter field %q", c.Field)
	}

	if c.Op == query.OpContains {
		needle, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("contains on %s needs text, got %T", c.Field, c.Value)
		}
		b.sb.WriteString(" AND ")
		fmt.Fprintf(&b.sb, b.d.contains, c.Field, b.arg(needle))
		return nil
	}

	op, ok := sqlOperators[c.Op]
	if !ok {
		return fmt.Errorf("unsupported operator %q on %s", c.Op, c.Field)
	}

	var value any
	switch kind {
	case query.KindFlag:
		n, ok := c.Value.(int64)
		if !ok {
			return fmt.Errorf("flag %s needs 0 or 1, got %T", c.Field, c.Value)
		}
		value = n == 1
	case query.KindNumber:
		n, ok := c.Value.(int64)
		if !ok {
			return fmt.Errorf("numeric field %s needs an integer, got %T", c.Field, c.Value)
		}
		value = n
	default:
		s, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("text field %s needs text, got %T", c.Field, c.Value)
		}
		value = s
	}

	fmt.Fprintf(&b.sb, " AND %s %s %s", b.column(c.Field), op, b.arg(value))
	return nil
}

// orderBy appends the ordering: the requested field with absent values
// last, then the fingerprint.
func (b *builder) orderBy(s query.Sort) {
	dir := "ASC"
	if s.Direction == query.Descending {
		dir = "DESC"
	}
	fmt.Fprintf(&b.sb, " ORDER BY %s %s NULLS LAST", b.column(s.Field), dir)
	if s.Field != "fingerprint" {
		fmt.Fprintf(&b.sb, ", %s ASC", b.column("fingerprint"))
	}
}

// buildRelayQuery translates a compiled spec into a SELECT over the
// current snapshot.
func (d dialect) buildRelayQuery(spec *query.Spec) (string, []any, error) {
	b := &builder{d: d}
	b.selectRelays()
	if spec != nil {
		for _, c := range spec.Constraints {
			if err := b.where(c); err != nil {
				return "", nil, err
			}
		}
	}
	b.orderBy(spec.OrderBy())
	return b.sb.String(), b.args, nil
}

func (d dialect) relayByFingerprintQuery(fingerprint string) (string, []any) {
	b := &builder{d: d}
	b.selectRelays()
	fmt.Fprintf(&b.sb, " AND fingerprint = %s", b.arg(fingerprint))
	return b.sb.String(), b.args
}

func (d dialect) exitAddressesQuery() string {
	return fmt.Sprintf("SELECT DISTINCT address FROM %s WHERE %s AND isexit = %s ORDER BY address",
		constants.RelayTable, currentSnapshot, "TRUE")
}

func (d dialect) latestValidAfterQuery() string {
	return fmt.Sprintf("SELECT MAX(valid_after) FROM %s", constants.RelayTable)
}

func (d dialect) deleteSnapshotQuery() string {
	return fmt.Sprintf("DELETE FROM %s WHERE valid_after = %s", constants.RelayTable, d.bind(1))
}

func (d dialect) insertRelayQuery() string {
	binds := make([]string, len(relayColumns))
	for i := range binds {
		binds[i] = d.bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		constants.RelayTable, strings.Join(relayColumns, ", "), strings.Join(binds, ", "))
}
