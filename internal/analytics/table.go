package analytics

// Table is a query result ready for rendering.
//
// Cells hold one of: time.Time, string, decimal.Decimal,
// decimal.NullDecimal, float64 (NaN when undefined) or int.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) append(row ...any) {
	t.Rows = append(t.Rows, row)
}
