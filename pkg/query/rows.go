package query

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Row is one solution. Every projected variable has an entry; a zero node
// marks a variable left unbound by an OPTIONAL group.
type Row map[string]store.Node

// Get returns the binding of name and whether it is bound.
func (r Row) Get(name string) (store.Node, bool) {
	n := r[name]
	return n, !n.IsZero()
}

// Bound reports whether name is bound in the row.
func (r Row) Bound(name string) bool {
	return !r[name].IsZero()
}

// Rows is a cursor over the solutions of an executing query. Solutions are
// computed as Next is called; Close releases the cursor and must be called
// when the caller stops early.
//
//	rows, err := prepared.Execute(ctx)
//	if err != nil { ... }
//	defer rows.Close()
//	for rows.Next() {
//		row := rows.Row()
//	}
//	if err := rows.Err(); err != nil { ... }
type Rows struct {
	columns []string
	next    func() (Row, bool)
	stop    func()
	cancel  context.CancelFunc

	row   Row
	count int
	err   error

	started  time.Time
	planTime time.Duration
	onClose  func(rows *Rows)

	closeOnce sync.Once
}

func newRows(columns []string, seq iter.Seq[Row], cancel context.CancelFunc, onClose func(*Rows)) *Rows {
	next, stop := iter.Pull(seq)
	return &Rows{
		columns: columns,
		next:    next,
		stop:    stop,
		cancel:  cancel,
		started: time.Now(),
		onClose: onClose,
	}
}

// Columns returns the projected variable names.
func (r *Rows) Columns() []string { return r.columns }

// Next advances to the next solution. It returns false when the solutions
// are exhausted, an error occurred or the cursor was closed; the cursor is
// closed automatically in the first two cases.
func (r *Rows) Next() bool {
	if r.next == nil {
		return false
	}
	row, ok := r.next()
	if !ok {
		r.Close()
		return false
	}
	r.row = row
	r.count++
	return true
}

// Row returns the current solution.
func (r *Rows) Row() Row { return r.row }

// Count returns the number of solutions returned so far.
func (r *Rows) Count() int { return r.count }

// Err returns the error that ended iteration, if any.
func (r *Rows) Err() error { return r.err }

// Elapsed returns the time since execution started.
func (r *Rows) Elapsed() time.Duration { return time.Since(r.started) }

// Close stops the cursor and releases its resources. It is safe to call
// more than once.
func (r *Rows) Close() error {
	r.closeOnce.Do(func() {
		if r.stop != nil {
			r.stop()
		}
		if r.cancel != nil {
			r.cancel()
		}
		r.next = nil
		r.row = nil
		if r.onClose != nil {
			r.onClose(r)
		}
	})
	return nil
}

// fail records the error that ends iteration.
func (r *Rows) fail(query string, err error) {
	if r.err == nil {
		r.err = errs.NewQueryError(errs.CodeEvaluation, query, err, "execution stopped: %v", err)
	}
}

// All drains the cursor into a slice and closes it.
func (r *Rows) All() ([]Row, error) {
	defer r.Close()
	var rows []Row
	for r.Next() {
		rows = append(rows, r.Row())
	}
	return rows, r.Err()
}
