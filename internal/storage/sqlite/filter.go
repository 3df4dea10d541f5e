package sqlite

import "strings"

// Filter accumulates (predicate, bound-parameter) pairs for the variable
// parts of a query. User input only ever travels through Params, never
// through the SQL text itself.
type Filter struct {
	predicates []string
	params     []interface{}
}

func NewFilter() *Filter {
	return &Filter{}
}

// Add appends a predicate with its bound parameters.
func (f *Filter) Add(predicate string, params ...interface{}) *Filter {
	f.predicates = append(f.predicates, predicate)
	f.params = append(f.params, params...)
	return f
}

// In appends a column IN (?, ...) predicate. Empty values add nothing.
func (f *Filter) In(column string, values []string) *Filter {
	if len(values) == 0 {
		return f
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		f.params = append(f.params, v)
	}
	f.predicates = append(f.predicates, column+" IN ("+strings.Join(placeholders, ",")+")")
	return f
}

// Where returns the assembled WHERE clause body and its parameters.
// With no predicates it returns "1=1" so callers can splice unconditionally.
func (f *Filter) Where() (string, []interface{}) {
	if len(f.predicates) == 0 {
		return "1=1", nil
	}
	return f.Join(" AND ")
}

// Join assembles the predicates with an arbitrary separator (OR matching,
// comma-joined SET lists).
func (f *Filter) Join(sep string) (string, []interface{}) {
	return strings.Join(f.predicates, sep), f.params
}

// Empty reports whether any predicate has been added.
func (f *Filter) Empty() bool {
	return len(f.predicates) == 0
}
