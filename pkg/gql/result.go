package gql

import (
	"encoding/json"

	"github.com/deepgraph/graphlite/pkg/storage"
)

// Row maps projected column names to their values.
type Row map[string]storage.Value

// Result is the tabular outcome of a query. Variables lists column
// names in RETURN order; every Row has exactly those keys.
type Result struct {
	Variables []string
	Rows      []Row
	RowCount  int
}

// MarshalJSON renders the wire form:
//
//	{"variables": [...], "rows": [{...}], "row_count": n}
//
// Nil slices serialize as empty arrays, never null.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Variables []string `json:"variables"`
		Rows      []Row    `json:"rows"`
		RowCount  int      `json:"row_count"`
	}{
		Variables: r.Variables,
		Rows:      r.Rows,
		RowCount:  r.RowCount,
	}
	if out.Variables == nil {
		out.Variables = []string{}
	}
	if out.Rows == nil {
		out.Rows = []Row{}
	}
	return json.Marshal(out)
}

func emptyResult() *Result {
	return &Result{Variables: []string{}}
}
