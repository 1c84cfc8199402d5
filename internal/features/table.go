package features

import (
	"time"

	"emlakindex/server/internal/models"
)

// RowMeta carries the identifying attributes of a feature row that are not
// part of the numeric feature space.
type RowMeta struct {
	LocationCode string
	PropertyType models.PropertyType
	Date         time.Time
}

// Table is a dense feature matrix with named columns and per-row metadata.
// Rows and Meta are index-aligned.
type Table struct {
	Cols []string
	Rows [][]float64
	Meta []RowMeta
}

// NumRows returns the number of feature rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1 when absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Cols {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column, or nil when absent.
func (t *Table) Column(name string) []float64 {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// Select reindexes the table to exactly the given column order. Columns the
// table does not have are filled with zeros; this is the replay contract that
// keeps prediction input aligned with the column order seen at fit time.
func (t *Table) Select(cols []string) *Table {
	out := &Table{
		Cols: append([]string(nil), cols...),
		Rows: make([][]float64, len(t.Rows)),
		Meta: t.Meta,
	}
	src := make([]int, len(cols))
	for j, c := range cols {
		src[j] = t.ColumnIndex(c)
	}
	for i, row := range t.Rows {
		dst := make([]float64, len(cols))
		for j, s := range src {
			if s >= 0 {
				dst[j] = row[s]
			}
		}
		out.Rows[i] = dst
	}
	return out
}

// Drop returns a view of the table without the named columns.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]string, 0, len(t.Cols))
	for _, c := range t.Cols {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return t.Select(keep)
}
