package database

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Inserter accumulates rows for one table and writes them as a single
// multi-row insert whenever the batch row limit is reached. Callers must
// Flush once at the end of the stream.
type Inserter struct {
	execer    sqlx.Execer
	stmt      string // "insert into t (a, b) VALUES "
	params    string // "(?, ?)"
	ncols     int
	batchrows int
	sqlbuild  strings.Builder
	valueArgs []interface{}
	pending   int
	flushed   int
}

func NewInserter(execer sqlx.Execer, table string, columns []string, batchrows int) *Inserter {
	params := "(?" + strings.Repeat(", ?", len(columns)-1) + ")"
	in := &Inserter{
		execer:    execer,
		stmt:      "insert into " + table + " (" + strings.Join(columns, ", ") + ") VALUES ",
		params:    params,
		ncols:     len(columns),
		batchrows: batchrows,
		valueArgs: make([]interface{}, 0, len(columns)*batchrows),
	}
	return in
}

// Add buffers one row. args must match the column list.
func (in *Inserter) Add(args ...interface{}) error {
	if in.pending == 0 {
		in.sqlbuild.WriteString(in.stmt)
	} else {
		in.sqlbuild.WriteString(",")
	}
	in.sqlbuild.WriteString(in.params)
	in.valueArgs = append(in.valueArgs, args...)
	in.pending++
	if in.pending >= in.batchrows {
		return in.Flush()
	}
	return nil
}

// Flush writes any buffered rows.
func (in *Inserter) Flush() error {
	if in.pending == 0 {
		return nil
	}
	_, err := in.execer.Exec(in.sqlbuild.String(), in.valueArgs...)
	n := in.pending
	in.sqlbuild.Reset()
	in.valueArgs = in.valueArgs[:0]
	in.pending = 0
	if err != nil {
		return err
	}
	in.flushed += n
	return nil
}

// Rows returns the number of rows written so far.
func (in *Inserter) Rows() int {
	return in.flushed
}
