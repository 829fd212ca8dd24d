package exec

import (
	"context"

	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// dualIterator yields exactly one empty row, the source a FROM-less
// SELECT (e.g. `SELECT 1 + 1`) projects against — named after Oracle's
// DUAL table convention, the idiom other SQL engines use for this case.
type dualIterator struct {
	done bool
}

func (d *dualIterator) Schema() []physplan.Column { return nil }

func (d *dualIterator) Next(ctx context.Context) (*Batch, *dbfmt.Error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	return &Batch{Rows: []Row{{}}}, nil
}

func (d *dualIterator) Close() *dbfmt.Error { return nil }
