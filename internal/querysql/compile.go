// Package querysql compiles journal queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/kllcore/internal/ir"
	"github.com/roach88/kllcore/internal/queryir"
)

// selectColumns is the row layout the store scans for each source.
var selectColumns = map[queryir.Source]string{
	queryir.InputEvents: "seq, tick, scan_code, edge, ts, value",
	queryir.Actions:     "seq, tick, trigger_id, result_id, cap_id, name, phase, params, ts",
}

// SQLCompiler compiles queries scoped to one session.
//
// Every query is restricted to the session and ordered by seq. Values are
// always passed as parameters, never interpolated.
type SQLCompiler struct {
	SessionID string
}

// NewSQLCompiler creates a compiler for sessionID's rows.
func NewSQLCompiler(sessionID string) *SQLCompiler {
	return &SQLCompiler{SessionID: sessionID}
}

// Compile converts a query to SQL and its parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(res.Problems, "; "))
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	where := "session_id = ?"
	params := []any{c.SessionID}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY seq ASC",
		selectColumns[q.From], q.From, where)
	return sql, params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.Between:
		return compileBetween(pred), []any{pred.Lo, pred.Hi}, nil
	case *queryir.Between:
		return compileBetween(*pred), []any{pred.Lo, pred.Hi}, nil
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := toParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func compileBetween(b queryir.Between) string {
	return b.Field + " BETWEEN ? AND ?"
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, p := range and.Predicates {
		sql, ps, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// toParam converts a predicate value to the driver type SQLite stores.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case ir.EdgeKind:
		return string(val), nil
	case ir.Phase:
		return string(val), nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case ir.ScanCode:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
