package dataset

import (
	"fmt"
	"sort"
	"time"
)

// Role describes the semantic role of a column within a dataset.
type Role string

const (
	RoleTimestamp Role = "timestamp"
	RoleTarget    Role = "target"
	RoleFeature   Role = "feature"
)

// Kind describes the physical type of a column's values.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindTime        Kind = "time"
)

// Column holds one named column of values with an explicit null mask.
// Exactly one of Floats, Strings or Times is populated, matching Kind.
// Valid is parallel to the value slice; Valid[i] == false means null.
type Column struct {
	Name    string
	Role    Role
	Kind    Kind
	Floats  []float64
	Strings []string
	Times   []time.Time
	Valid   []bool
}

// NewNumericColumn creates a numeric column. A nil valid mask marks every
// value as present.
func NewNumericColumn(name string, role Role, values []float64, valid []bool) *Column {
	if valid == nil {
		valid = allValid(len(values))
	}
	return &Column{Name: name, Role: role, Kind: KindNumeric, Floats: values, Valid: valid}
}

// NewCategoricalColumn creates a categorical column. A nil valid mask marks
// every value as present.
func NewCategoricalColumn(name string, role Role, values []string, valid []bool) *Column {
	if valid == nil {
		valid = allValid(len(values))
	}
	return &Column{Name: name, Role: role, Kind: KindCategorical, Strings: values, Valid: valid}
}

// NewTimeColumn creates a timestamp column. Timestamp columns are always
// fully populated; a row without a parseable timestamp is rejected upstream.
func NewTimeColumn(name string, values []time.Time) *Column {
	return &Column{Name: name, Role: RoleTimestamp, Kind: KindTime, Times: values, Valid: allValid(len(values))}
}

func allValid(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	return len(c.Valid)
}

// IsNull reports whether the value at row i is null.
func (c *Column) IsNull(i int) bool {
	return !c.Valid[i]
}

// NullCount returns the number of null values in the column.
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.Valid {
		if !ok {
			n++
		}
	}
	return n
}

// NonNullFloats returns the non-null numeric values in row order.
func (c *Column) NonNullFloats() []float64 {
	out := make([]float64, 0, len(c.Floats))
	for i, v := range c.Floats {
		if c.Valid[i] {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Role: c.Role, Kind: c.Kind}
	if c.Floats != nil {
		out.Floats = append([]float64(nil), c.Floats...)
	}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	if c.Times != nil {
		out.Times = append([]time.Time(nil), c.Times...)
	}
	out.Valid = append([]bool(nil), c.Valid...)
	return out
}

// take returns a copy of the column containing only the rows whose index
// appears in idx, in idx order.
func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Role: c.Role, Kind: c.Kind, Valid: make([]bool, len(idx))}
	if c.Floats != nil {
		out.Floats = make([]float64, len(idx))
	}
	if c.Strings != nil {
		out.Strings = make([]string, len(idx))
	}
	if c.Times != nil {
		out.Times = make([]time.Time, len(idx))
	}
	for j, i := range idx {
		out.Valid[j] = c.Valid[i]
		if c.Floats != nil {
			out.Floats[j] = c.Floats[i]
		}
		if c.Strings != nil {
			out.Strings[j] = c.Strings[i]
		}
		if c.Times != nil {
			out.Times[j] = c.Times[i]
		}
	}
	return out
}

// Dataset is an ordered collection of equal-length columns. At most one
// column carries RoleTimestamp and at most one carries RoleTarget.
type Dataset struct {
	cols  []*Column
	index map[string]int
}

// New builds a dataset from the given columns, enforcing unique names and
// equal lengths.
func New(cols ...*Column) (*Dataset, error) {
	ds := &Dataset{index: make(map[string]int, len(cols))}
	rows := -1
	for _, col := range cols {
		if col.Name == "" {
			return nil, fmt.Errorf("column name cannot be empty")
		}
		if _, exists := ds.index[col.Name]; exists {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		if rows == -1 {
			rows = col.Len()
		} else if col.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), rows)
		}
		ds.index[col.Name] = len(ds.cols)
		ds.cols = append(ds.cols, col)
	}
	return ds, nil
}

// Rows returns the number of rows in the dataset.
func (d *Dataset) Rows() int {
	if len(d.cols) == 0 {
		return 0
	}
	return d.cols[0].Len()
}

// Columns returns the columns in order. The slice is a copy; the columns
// themselves are shared.
func (d *Dataset) Columns() []*Column {
	out := make([]*Column, len(d.cols))
	copy(out, d.cols)
	return out
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.cols))
	for i, col := range d.cols {
		names[i] = col.Name
	}
	return names
}

// Column returns the named column, or false if it does not exist.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.cols[i], true
}

// Timestamp returns the timestamp column, or false if none is designated.
func (d *Dataset) Timestamp() (*Column, bool) {
	for _, col := range d.cols {
		if col.Role == RoleTimestamp {
			return col, true
		}
	}
	return nil, false
}

// Target returns the target column, or false if none is designated.
func (d *Dataset) Target() (*Column, bool) {
	for _, col := range d.cols {
		if col.Role == RoleTarget {
			return col, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	cols := make([]*Column, len(d.cols))
	for i, col := range d.cols {
		cols[i] = col.Clone()
	}
	out, _ := New(cols...)
	return out
}

// WithColumn returns a new dataset with col appended. The existing columns
// are shared, not copied.
func (d *Dataset) WithColumn(col *Column) (*Dataset, error) {
	if d.Rows() != col.Len() && len(d.cols) > 0 {
		return nil, fmt.Errorf("column %q has %d rows, dataset has %d", col.Name, col.Len(), d.Rows())
	}
	cols := append(d.Columns(), col)
	return New(cols...)
}

// ReplaceColumn returns a new dataset with the named column replaced.
func (d *Dataset) ReplaceColumn(col *Column) (*Dataset, error) {
	i, ok := d.index[col.Name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", col.Name)
	}
	if col.Len() != d.Rows() {
		return nil, fmt.Errorf("column %q has %d rows, dataset has %d", col.Name, col.Len(), d.Rows())
	}
	cols := d.Columns()
	cols[i] = col
	return New(cols...)
}

// Select returns a new dataset whose rows are the indices in idx, in order.
func (d *Dataset) Select(idx []int) *Dataset {
	cols := make([]*Column, len(d.cols))
	for i, col := range d.cols {
		cols[i] = col.take(idx)
	}
	out, _ := New(cols...)
	return out
}

// DropRows returns a new dataset keeping only rows where keep[i] is true.
func (d *Dataset) DropRows(keep []bool) *Dataset {
	idx := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return d.Select(idx)
}

// SortByTimestamp returns a new dataset sorted ascending by the timestamp
// column. The sort is stable so duplicate timestamps keep their input order.
func (d *Dataset) SortByTimestamp() (*Dataset, error) {
	ts, ok := d.Timestamp()
	if !ok {
		return nil, fmt.Errorf("dataset has no timestamp column")
	}
	idx := make([]int, d.Rows())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return ts.Times[idx[a]].Before(ts.Times[idx[b]])
	})
	return d.Select(idx), nil
}

// Summary returns a compact description of the dataset for logging.
func (d *Dataset) Summary() string {
	return fmt.Sprintf("%d rows x %d columns", d.Rows(), len(d.cols))
}
