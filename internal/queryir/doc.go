// Package queryir describes reads over a journaled session independent of
// the database that holds it.
//
// A query selects rows from one journal source (input events or actions)
// and filters them with predicates. Backends compile queries; querysql
// turns them into parameterized SQLite.
//
//	Select{
//	  From: Actions,
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "name", Value: "hid.keyboard"},
//	    Between{Field: "seq", Lo: 10, Hi: 40},
//	  }},
//	}
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch over them exhaustively.
//
// Every field a predicate names must be a column of its source, and
// values must have the column's type: string for name, phase and edge,
// an integer for everything else. Validate checks both; backends refuse
// queries that fail it, which keeps field names safe to interpolate.
package queryir
