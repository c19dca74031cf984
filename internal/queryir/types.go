package queryir

// Source names a journal row set.
type Source string

const (
	InputEvents Source = "input_events"
	Actions     Source = "actions"
)

// Query is a read over one session's journal.
type Query interface {
	queryNode()
}

// Predicate filters the rows of a query.
type Predicate interface {
	predicateNode()
}

// Select reads the rows of From that satisfy Filter, in seq order.
// A nil Filter keeps every row.
type Select struct {
	From   Source
	Filter Predicate
}

func (Select) queryNode() {}

// Equals keeps rows whose Field equals Value.
//
// Value is a string or an integer (int, int32, int64, ir.ScanCode).
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Between keeps rows whose integer Field lies in [Lo, Hi].
type Between struct {
	Field string
	Lo    int64
	Hi    int64
}

func (Between) predicateNode() {}

// And keeps rows that satisfy every predicate. An empty And keeps every
// row.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// ColumnKind is the value type of a journal column.
type ColumnKind int

const (
	IntColumn ColumnKind = iota
	TextColumn
)

// columns lists the filterable columns of each source.
var columns = map[Source]map[string]ColumnKind{
	InputEvents: {
		"seq":       IntColumn,
		"tick":      IntColumn,
		"scan_code": IntColumn,
		"edge":      TextColumn,
		"ts":        IntColumn,
		"value":     IntColumn,
	},
	Actions: {
		"seq":        IntColumn,
		"tick":       IntColumn,
		"trigger_id": IntColumn,
		"result_id":  IntColumn,
		"cap_id":     IntColumn,
		"name":       TextColumn,
		"phase":      TextColumn,
		"ts":         IntColumn,
	},
}

// Column returns the kind of a source's column.
func Column(src Source, field string) (ColumnKind, bool) {
	cols, ok := columns[src]
	if !ok {
		return 0, false
	}
	kind, ok := cols[field]
	return kind, ok
}

// Where adds p to q's filter.
func Where(q Select, p Predicate) Select {
	switch {
	case p == nil:
	case q.Filter == nil:
		q.Filter = p
	default:
		q.Filter = And{Predicates: []Predicate{q.Filter, p}}
	}
	return q
}
