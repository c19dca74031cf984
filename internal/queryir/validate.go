package queryir

import (
	"fmt"

	"github.com/roach88/kllcore/internal/ir"
)

// ValidationResult lists what is wrong with a query.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Validate checks that a query reads a known source and that every
// predicate names one of its columns with a value of the right type.
func Validate(q Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(q)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if _, ok := columns[sel.From]; !ok {
		v.addProblem("unknown source %q", sel.From)
		return
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.From, sel.Filter)
	}
}

func (v *validator) validatePredicate(src Source, p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateEquals(src, pred)
	case *Equals:
		v.validateEquals(src, *pred)
	case Between:
		v.validateBetween(src, pred)
	case *Between:
		v.validateBetween(src, *pred)
	case And:
		v.validateAnd(src, pred)
	case *And:
		v.validateAnd(src, *pred)
	case nil:
		v.addProblem("nil predicate")
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(src Source, eq Equals) {
	kind, ok := Column(src, eq.Field)
	if !ok {
		v.addProblem("%s has no column %q", src, eq.Field)
		return
	}
	switch eq.Value.(type) {
	case string, ir.EdgeKind, ir.Phase:
		if kind != TextColumn {
			v.addProblem("%s.%s is an integer column, got %T", src, eq.Field, eq.Value)
		}
	case int, int32, int64, ir.ScanCode:
		if kind != IntColumn {
			v.addProblem("%s.%s is a text column, got %T", src, eq.Field, eq.Value)
		}
	default:
		v.addProblem("%s.%s: unsupported value type %T", src, eq.Field, eq.Value)
	}
}

func (v *validator) validateBetween(src Source, b Between) {
	kind, ok := Column(src, b.Field)
	if !ok {
		v.addProblem("%s has no column %q", src, b.Field)
		return
	}
	if kind != IntColumn {
		v.addProblem("%s.%s is a text column; Between needs an integer column", src, b.Field)
	}
	if b.Lo > b.Hi {
		v.addProblem("%s.%s: empty range [%d, %d]", src, b.Field, b.Lo, b.Hi)
	}
}

func (v *validator) validateAnd(src Source, and And) {
	for _, p := range and.Predicates {
		v.validatePredicate(src, p)
	}
}
